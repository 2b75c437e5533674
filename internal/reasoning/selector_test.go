package reasoning

import "testing"

func TestSelectAction_PrefersWebSearchTool(t *testing.T) {
	tools := []ToolCandidate{{Name: "read_file"}, {Name: "google_search"}}
	action, params := SelectAction("what is the latest news from openai", 0, tools)
	if action != "google_search" {
		t.Fatalf("action = %q, want google_search", action)
	}
	query, _ := params["query"].(string)
	if query == "" {
		t.Fatal("expected a non-empty query parameter")
	}
}

func TestSelectAction_FilesystemKeyword(t *testing.T) {
	tools := []ToolCandidate{{Name: "read_file"}, {Name: "google_search"}}
	action, params := SelectAction("please create a file named notes.txt", 0, tools)
	if action != "read_file" {
		t.Fatalf("action = %q, want read_file (only filesystem-pattern tool available)", action)
	}
	if params["path"] == "" {
		t.Fatal("expected a defaulted path parameter")
	}
}

func TestSelectAction_WeatherKeyword(t *testing.T) {
	tools := []ToolCandidate{{Name: "get_weather_for_city_at_date"}}
	action, params := SelectAction("what is the weather in Paris", 0, tools)
	if action != "get_weather_for_city_at_date" {
		t.Fatalf("action = %q, want the weather tool", action)
	}
	if params["city"] != "Paris" {
		t.Fatalf("city = %v, want Paris", params["city"])
	}
	if params["date"] == "" {
		t.Fatal("expected a defaulted date parameter")
	}
}

func TestSelectAction_WeatherKeyword_DefaultsCity(t *testing.T) {
	tools := []ToolCandidate{{Name: "get_weather_for_city_at_date"}}
	_, params := SelectAction("what's the weather like today", 0, tools)
	if params["city"] != "Beijing" {
		t.Fatalf("city = %v, want default Beijing", params["city"])
	}
}

func TestSelectAction_StepCountFallback(t *testing.T) {
	cases := []struct {
		stepsTaken int
		want       string
	}{
		{0, ActionSearchInformation},
		{1, ActionAnalyzeData},
		{2, ActionSynthesizeResults},
		{3, ActionValidateAnswer},
		{10, ActionValidateAnswer},
	}
	for _, c := range cases {
		action, _ := SelectAction("do something generic", c.stepsTaken, nil)
		if action != c.want {
			t.Errorf("stepsTaken=%d: action = %q, want %q", c.stepsTaken, action, c.want)
		}
	}
}

func TestSelectAction_NoMatchingToolFallsBackToStepCount(t *testing.T) {
	// "search" keyword present but no web-search-pattern tool registered and
	// the goal doesn't also mention file/document/local, so the selector
	// should fall through to the step-count ladder.
	action, _ := SelectAction("search for something", 0, []ToolCandidate{{Name: "unrelated_tool"}})
	if action != ActionSearchInformation {
		t.Fatalf("action = %q, want fallback to %q", action, ActionSearchInformation)
	}
}

func TestIsBuiltinAction(t *testing.T) {
	for _, name := range []string{
		ActionSearchInformation, ActionAnalyzeData, ActionSynthesizeResults,
		ActionValidateAnswer, ActionRequestClarification, ActionCreateContent,
	} {
		if !IsBuiltinAction(name) {
			t.Errorf("IsBuiltinAction(%q) = false, want true", name)
		}
	}
	if IsBuiltinAction("google_search") {
		t.Error("IsBuiltinAction(google_search) = true, want false")
	}
}
