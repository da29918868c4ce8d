// Package coach generates study content with the Gemini API: research
// answers with web grounding, task breakdowns, study guides, quizzes,
// and lab query fixes. Voice interaction lives in pkg/core/live; this
// package covers the text side of the app.
package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/focusflow/focusflow-go/pkg/chat"
	"github.com/focusflow/focusflow-go/pkg/core"
)

const (
	// DefaultModel handles structured generation (guides, quizzes, fixes).
	DefaultModel = "gemini-3-flash-preview"
	// ResearchModel handles grounded research questions.
	ResearchModel = "gemini-3-pro-preview"

	// FallbackAnswer is shown when a grounded answer comes back empty.
	FallbackAnswer = "I couldn't find an answer, but let's keep trying!"

	// fallbackSourceTitle labels grounding chunks that carry no title.
	fallbackSourceTitle = "Research Source"
)

const coachPersona = `You are the study coach inside the FocusFlow app.
Your goal is to help students with deep research and problem-solving.
Be extremely friendly, supportive, and use simple language.
Always provide deep, well-researched answers.`

const labPersona = `You are the study coach. Help the user fix their code or SQL query
in the FocusFlow Lab. Be encouraging and clear. If it's a simple mistake, explain it kindly.`

const quizEvalPersona = `Evaluate quiz results. Be friendly and supportive.
If the score is low, be very empathetic. If high, be celebratory.`

// generateFunc matches the genai Models.GenerateContent signature so
// tests can substitute canned responses.
type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// Coach issues text generation requests on behalf of the app.
type Coach struct {
	model         string
	researchModel string
	generate      generateFunc
}

// New dials the Gemini API with the given key.
func New(ctx context.Context, apiKey string) (*Coach, error) {
	if apiKey == "" {
		return nil, core.NewInvalidRequestError("API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, core.NewConnectionError("failed to create Gemini client", err)
	}
	return &Coach{
		model:         DefaultModel,
		researchModel: ResearchModel,
		generate:      client.Models.GenerateContent,
	}, nil
}

// Answer is a grounded research reply.
type Answer struct {
	Text    string        `json:"text"`
	Sources []chat.Source `json:"sources,omitempty"`
}

// Mission is a task broken into small actionable steps.
type Mission struct {
	MissionName      string   `json:"missionName"`
	Steps            []string `json:"steps"`
	FocusTimeMinutes int      `json:"focusTimeMinutes"`
	XPReward         int      `json:"xpReward"`
	Encouragement    string   `json:"encouragement"`
}

// StudyGuide summarizes a unit for review.
type StudyGuide struct {
	Title        string         `json:"title"`
	Summary      string         `json:"summary"`
	Sections     []GuideSection `json:"sections"`
	KeyTakeaways []string       `json:"keyTakeaways"`
}

// GuideSection is one heading of a study guide.
type GuideSection struct {
	Heading string `json:"heading"`
	Content string `json:"content"`
}

// QuizQuestion is a single multiple choice question.
type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
}

// QuizResult grades a completed quiz.
type QuizResult struct {
	Score       int          `json:"score"`
	Total       int          `json:"total"`
	Feedback    string       `json:"feedback"`
	Corrections []Correction `json:"corrections"`
}

// Correction explains one graded answer.
type Correction struct {
	Question      string `json:"question"`
	UserAnswer    string `json:"userAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
	IsCorrect     bool   `json:"isCorrect"`
	Explanation   string `json:"explanation"`
}

// LabFix is a corrected query with an explanation.
type LabFix struct {
	CorrectedQuery string `json:"correctedQuery"`
	Explanation    string `json:"explanation"`
}

// AskCoach answers a research question with web grounding. The prior
// conversation is replayed as context; assistant turns map to the
// model role.
func (c *Coach) AskCoach(ctx context.Context, prompt string, history []chat.Message) (*Answer, error) {
	contents := historyContents(history)
	contents = append(contents, genai.NewContentFromText(prompt, genai.RoleUser))

	resp, err := c.generate(ctx, c.researchModel, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(coachPersona, genai.RoleUser),
		Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	})
	if err != nil {
		return nil, core.NewConnectionError("research request failed", err)
	}

	text := resp.Text()
	if text == "" {
		text = FallbackAnswer
	}
	return &Answer{Text: text, Sources: extractSources(resp)}, nil
}

// BreakDownTask splits a task into 3-6 tiny steps with a focus budget
// and an XP reward.
func (c *Coach) BreakDownTask(ctx context.Context, taskName string) (*Mission, error) {
	prompt := fmt.Sprintf("Break down this task into 3-6 tiny steps: %q", taskName)
	var mission Mission
	if err := c.generateJSON(ctx, coachPersona, prompt, missionSchema(), &mission); err != nil {
		return nil, err
	}
	return &mission, nil
}

// GenerateStudyGuide writes a study guide for a unit.
func (c *Coach) GenerateStudyGuide(ctx context.Context, unitTitle, unitDescription string) (*StudyGuide, error) {
	prompt := fmt.Sprintf("Create a comprehensive but easy-to-read study guide for the unit: %q. Description: %q. Target audience: teenagers/students.",
		unitTitle, unitDescription)
	var guide StudyGuide
	if err := c.generateJSON(ctx, coachPersona, prompt, studyGuideSchema(), &guide); err != nil {
		return nil, err
	}
	return &guide, nil
}

// GenerateQuiz produces a 10 question multiple choice quiz on a topic.
func (c *Coach) GenerateQuiz(ctx context.Context, topic string) ([]QuizQuestion, error) {
	prompt := fmt.Sprintf("Generate a fun 10-question multiple choice quiz for teens on the topic: %q. Keep it encouraging and clear.", topic)
	var questions []QuizQuestion
	if err := c.generateJSON(ctx, coachPersona, prompt, quizSchema(), &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// EvaluateQuiz grades the user's answers against the quiz.
func (c *Coach) EvaluateQuiz(ctx context.Context, topic string, questions []QuizQuestion, userAnswers []string) (*QuizResult, error) {
	type graded struct {
		Q       string `json:"q"`
		Ans     string `json:"ans"`
		Correct string `json:"correct"`
	}
	rows := make([]graded, len(questions))
	for i, q := range questions {
		rows[i] = graded{Q: q.Question, Correct: q.CorrectAnswer}
		if i < len(userAnswers) {
			rows[i].Ans = userAnswers[i]
		}
	}
	encoded, err := json.Marshal(rows)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to encode quiz answers")
	}
	prompt := fmt.Sprintf("Topic: %s. Questions and user answers: %s.\nEvaluate the performance. Total questions is %d.",
		topic, encoded, len(questions))

	var result QuizResult
	if err := c.generateJSON(ctx, quizEvalPersona, prompt, quizResultSchema(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AnalyzeLabQuery reviews a code or SQL snippet, optionally against the
// error it produced.
func (c *Coach) AnalyzeLabQuery(ctx context.Context, query, errorMessage string) (*LabFix, error) {
	var prompt string
	if errorMessage != "" {
		prompt = fmt.Sprintf("The user tried to run this query: %q but got this error: %q. Help them fix it! Fix the syntax if it's SQL or explain what went wrong.",
			query, errorMessage)
	} else {
		prompt = fmt.Sprintf("The user wants to know if this code/query is correct or how to improve it: %q. Provide a cleaner or more efficient version and explain why.",
			query)
	}
	var fix LabFix
	if err := c.generateJSON(ctx, labPersona, prompt, labFixSchema(), &fix); err != nil {
		return nil, err
	}
	return &fix, nil
}

// generateJSON runs a structured output request and decodes the reply
// into out.
func (c *Coach) generateJSON(ctx context.Context, persona, prompt string, schema *genai.Schema, out any) error {
	resp, err := c.generate(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(persona, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    schema,
	})
	if err != nil {
		return core.NewConnectionError("generation request failed", err)
	}
	return decodeReply(resp.Text(), out)
}

// decodeReply strips whitespace and optional markdown fences before
// decoding the model's JSON.
func decodeReply(text string, out any) error {
	trimmed := strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(trimmed, "```json"); ok {
		trimmed = rest
	} else if rest, ok := strings.CutPrefix(trimmed, "```"); ok {
		trimmed = rest
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return core.NewDecodeError("empty model reply", nil)
	}
	if err := json.Unmarshal([]byte(trimmed), out); err != nil {
		return core.NewDecodeError("malformed model reply", err)
	}
	return nil
}

// historyContents maps chat messages to genai contents. Assistant
// turns use the model role; everything else is user.
func historyContents(history []chat.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, msg := range history {
		role := genai.Role(genai.RoleUser)
		if msg.Role == chat.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return contents
}

// extractSources pulls web grounding citations out of a response.
// Chunks without a URI are dropped; untitled ones get a fallback title.
func extractSources(resp *genai.GenerateContentResponse) []chat.Source {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil {
		return nil
	}
	var sources []chat.Source
	for _, chunk := range meta.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		title := chunk.Web.Title
		if title == "" {
			title = fallbackSourceTitle
		}
		sources = append(sources, chat.Source{Title: title, URI: chunk.Web.URI})
	}
	return sources
}
