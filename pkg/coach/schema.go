package coach

import "google.golang.org/genai"

// Response schemas for structured generation. These mirror the JSON
// shapes the app renders.

func missionSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"missionName":      {Type: genai.TypeString},
			"steps":            {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"focusTimeMinutes": {Type: genai.TypeNumber},
			"xpReward":         {Type: genai.TypeNumber},
			"encouragement":    {Type: genai.TypeString},
		},
		Required: []string{"missionName", "steps", "focusTimeMinutes", "xpReward", "encouragement"},
	}
}

func studyGuideSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":   {Type: genai.TypeString},
			"summary": {Type: genai.TypeString},
			"sections": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"heading": {Type: genai.TypeString},
						"content": {Type: genai.TypeString},
					},
					Required: []string{"heading", "content"},
				},
			},
			"keyTakeaways": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		},
		Required: []string{"title", "summary", "sections", "keyTakeaways"},
	}
}

func quizSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"question":      {Type: genai.TypeString},
				"options":       {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
				"correctAnswer": {Type: genai.TypeString},
				"explanation":   {Type: genai.TypeString},
			},
			Required: []string{"question", "options", "correctAnswer", "explanation"},
		},
	}
}

func quizResultSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"score":    {Type: genai.TypeNumber},
			"total":    {Type: genai.TypeNumber},
			"feedback": {Type: genai.TypeString},
			"corrections": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"question":      {Type: genai.TypeString},
						"userAnswer":    {Type: genai.TypeString},
						"correctAnswer": {Type: genai.TypeString},
						"isCorrect":     {Type: genai.TypeBoolean},
						"explanation":   {Type: genai.TypeString},
					},
				},
			},
		},
		Required: []string{"score", "total", "feedback", "corrections"},
	}
}

func labFixSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"correctedQuery": {Type: genai.TypeString, Description: "The fixed or improved code."},
			"explanation":    {Type: genai.TypeString, Description: "A friendly explanation of the fix."},
		},
		Required: []string{"correctedQuery", "explanation"},
	}
}
