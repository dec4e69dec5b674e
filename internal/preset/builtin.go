package preset

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

const jsonOnly = `Reply with a single JSON object and nothing else: no Markdown fences, ` +
	`no explanations before or after it.`

func courseDesign() *Preset {
	return &Preset{
		Name:        "course-design",
		Title:       "Course design",
		Description: "Turns teaching material into a structured course plan.",
		ChunkSystemPrompt: `You are an experienced instructional designer. You receive one fragment of a longer ` +
			`teaching document. List the topics, learning objectives, key concepts and any exercises or ` +
			`activities the fragment contains. Be concise and keep the source language.`,
		FinalSystemPrompt: `You are an experienced instructional designer. You receive notes extracted from every ` +
			`part of a teaching document, separated by "---". Merge them into one course plan without ` +
			`repeating yourself.
` + jsonOnly + `
{
  "title": "course title",
  "objectives": ["learning objective", "..."],
  "outline": [{"session": "session name", "content": "what is covered"}],
  "activities": ["classroom activity or assignment", "..."]
}`,
		render: func(result json.RawMessage) string {
			var r renderer
			r.field(result, "", "title")
			r.list(result, "Objectives", "objectives", nil)
			r.list(result, "Outline", "outline", func(v gjson.Result) string {
				return joinFields(v, ": ", "session", "content")
			})
			r.list(result, "Activities", "activities", nil)

			return r.String()
		},
	}
}

func grading() *Preset {
	return &Preset{
		Name:        "grading",
		Title:       "Assignment grading",
		Description: "Scores a student assignment and writes feedback.",
		ChunkSystemPrompt: `You are an experienced teaching assistant grading a student assignment. You receive ` +
			`one fragment of the assignment. Note its strengths, mistakes and missing parts, quoting briefly ` +
			`where useful. Do not give a score yet.`,
		FinalSystemPrompt: `You are an experienced teaching assistant. You receive grading notes for every part ` +
			`of a student assignment, separated by "---". Decide one overall score out of 100 and write ` +
			`feedback covering strengths, what to improve and an overall assessment.
` + jsonOnly + `
{
  "score": "85/100",
  "comments": "detailed feedback in Markdown"
}`,
		render: func(result json.RawMessage) string {
			var r renderer
			r.field(result, "Score", "score")
			r.field(result, "", "comments")

			return r.String()
		},
	}
}

func studyGuide() *Preset {
	return &Preset{
		Name:        "study-guide",
		Title:       "Self-learning guide",
		Description: "Summarizes a document and proposes a study plan.",
		ChunkSystemPrompt: `You are a patient tutor helping a student learn on their own. You receive one ` +
			`fragment of a longer document. Extract its key points, definitions and anything a learner ` +
			`would need to remember.`,
		FinalSystemPrompt: `You are a patient tutor. You receive key points extracted from every part of a ` +
			`document, separated by "---". Write a short summary, the most important points and a ` +
			`step-by-step study plan.
` + jsonOnly + `
{
  "summary": "short summary of the whole document",
  "keyPoints": ["key point", "..."],
  "studyPlan": [{"step": "what to do", "goal": "what it achieves"}]
}`,
		render: func(result json.RawMessage) string {
			var r renderer
			r.field(result, "", "summary")
			r.list(result, "Key points", "keyPoints", nil)
			r.list(result, "Study plan", "studyPlan", func(v gjson.Result) string {
				return joinFields(v, " - ", "step", "goal")
			})

			return r.String()
		},
	}
}

func questionBank() *Preset {
	return &Preset{
		Name:        "question-bank",
		Title:       "Question bank",
		Description: "Writes review questions with answers from a document.",
		ChunkSystemPrompt: `You are an exam author. You receive one fragment of a longer document. Write two or ` +
			`three review questions that can be answered from the fragment, each with its answer.`,
		FinalSystemPrompt: `You are an exam author. You receive candidate questions written for every part of a ` +
			`document, separated by "---". Remove duplicates, keep the best ten at most and order them ` +
			`from easy to hard.
` + jsonOnly + `
{
  "questions": [{"question": "question text", "answer": "answer text"}]
}`,
		render: func(result json.RawMessage) string {
			var r renderer
			r.list(result, "Questions", "questions", func(v gjson.Result) string {
				return joinFields(v, "\n   Answer: ", "question", "answer")
			})

			return r.String()
		},
	}
}
