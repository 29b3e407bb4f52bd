package llm

import (
	"fmt"
	"strings"

	"github.com/Sabeehq11/CMI/internal/models"
)

const InterviewerInstruction = "You are an expert language assessment interviewer. " +
	"Generate natural, appropriate follow-up questions based on student responses and assessment criteria."

// Hints carries per-session context that is not part of the conversation itself.
type Hints struct {
	SessionID   string
	StudentName string
	Turn        int
}

func BuildQuestionPrompt(transcript []models.TranscriptEntry, rubric models.Rubric, language string, hints Hints) string {
	var criteria strings.Builder
	for _, c := range rubric.Criteria {
		fmt.Fprintf(&criteria, "%s (%.0f%% weight): %s\n", c.Name, c.Weight*100, c.Description)
	}

	var history strings.Builder
	for _, e := range transcript {
		who := "AI"
		if e.Speaker == models.SpeakerStudent {
			who = "Student"
		}
		fmt.Fprintf(&history, "%s: %s\n", who, e.Text)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert language interviewer conducting a 3-minute oral assessment in %s.\n", language)
	if hints.StudentName != "" {
		fmt.Fprintf(&b, "The student's name is %s.\n", hints.StudentName)
	}
	if hints.Turn > 0 {
		fmt.Fprintf(&b, "This is question number %d of the interview.\n", hints.Turn+1)
	}
	b.WriteString("\nRUBRIC CRITERIA:\n")
	b.WriteString(criteria.String())
	b.WriteString("\nCONVERSATION SO FAR:\n")
	b.WriteString(history.String())
	fmt.Fprintf(&b, `
Based on the student's responses and the rubric criteria, generate the next follow-up question that will:
1. Assess the student's proficiency in the target language
2. Be appropriate for their demonstrated level
3. Help evaluate the rubric criteria
4. Keep the conversation natural and engaging
5. Be in the target language (%s)

Respond with ONLY the question text, no additional formatting or explanation.`, language)

	return b.String()
}
