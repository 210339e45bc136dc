package services

import (
	"fmt"
	"strings"

	"github.com/careersim/backend/models"
)

// Personality is the style parameter shaping the interviewer's tone.
type Personality string

const (
	PersonalityFriendly   Personality = "friendly"
	PersonalityFormal     Personality = "formal"
	PersonalityStressTest Personality = "stress-test"
)

// NormalizePersonality maps unknown values to the friendly default rather
// than failing the request.
func NormalizePersonality(s string) Personality {
	switch Personality(s) {
	case PersonalityFriendly, PersonalityFormal, PersonalityStressTest:
		return Personality(s)
	default:
		return PersonalityFriendly
	}
}

// SentinelReportReady is the exact marker the interviewer model emits when it
// has gathered enough information and the conversation should move to
// scoring. It must match with no surrounding text.
const SentinelReportReady = "[REPORT_READY]"

// DefaultOpeningQuestion is substituted whenever the opening-question call
// fails or returns an empty response.
const DefaultOpeningQuestion = "Hello, and welcome to this mock interview. Let's start with a brief introduction - please tell me about yourself."

// TurnFailureMessage is appended as a regular interviewer message when a turn
// request fails, keeping the transcript append-only instead of erroring the
// session.
const TurnFailureMessage = "I'm sorry, I wasn't able to come up with a response just now. Could you expand on your previous answer while I gather my thoughts?"

// Canned report body used when the scoring call fails entirely, plus
// per-field substitutes when a single list is missing from an otherwise
// usable response.
const fallbackScore = 75

var (
	fallbackStrengths = []string{
		"Answers were clearly structured and logical",
		"Provided concrete project examples",
		"Fluent and natural delivery",
	}
	fallbackImprovements = []string{
		"Explain technical details more thoroughly",
		"Add deeper analysis of the reasoning behind answers",
		"Prepare more quantified results to back up claims",
	}
	fallbackRecommendations = []string{
		"Keep practicing the STAR method for behavioral questions",
		"Prepare answers for more in-depth technical questions",
		"Practice thinking on your feet under pressure",
	}
)

func buildSystemPrompt(personality Personality, interviewType string) string {
	base := fmt.Sprintf(`You are a professional interviewer conducting a %s interview.

Your core tasks:

1. Ask deep, relevant questions based on the candidate's previous answer
2. Ask exactly one question per turn
3. Your questions must help determine whether the candidate fits this field or position
4. Questions should cover:
   - Relevant past experience
   - Skill proficiency
   - Problem-solving ability
   - Motivation and values
   - Future career plans
5. Questions must be specific and open-ended, drawing out depth rather than yes/no answers
6. Adapt each question to the candidate's previous answer so the interview deepens step by step
7. You never answer for the candidate; you only ask questions and give brief feedback
8. Keep a professional tone matching the selected interview style
9. You may sketch a short scenario to make a question concrete, but still ask a single question

10. IMPORTANT: once you believe you have collected enough information to evaluate the candidate, do not ask another question. Reply with exactly: "%s"
    - Do not add any other text
    - Until then you must keep asking and deepening the interview
    - The client uses this signal to generate the evaluation report

Follow these rules strictly.

`, interviewType, SentinelReportReady)

	var style string
	switch personality {
	case PersonalityFormal:
		style = `Your interviewing style is formal and professional. You should:
- Use a formal, professional tone
- Ask structured questions
- Ask for concrete cases and evidence
- Stay objective and professional`
	case PersonalityStressTest:
		style = `Your interviewing style is challenging and pressure-testing. You should:
- Ask challenging questions
- Push back on answers and demand deeper explanations
- Simulate the pressure of a real high-stakes interview
- Test how the candidate performs under stress`
	default:
		style = `Your interviewing style is friendly and encouraging. You should:
- Use a warm, supportive tone
- Give positive feedback
- Help the candidate relax and show their real ability
- Gently prompt for more detail when an answer is incomplete`
	}

	return base + style
}

const openingQuestionInstruction = "Please ask the first interview question. It should invite the candidate to introduce themselves or open the conversation, and be concise, professional, and appropriate for the interview type."

const evaluationSystemPrompt = "You are a professional interview assessor, skilled at analyzing interview performance and giving constructive feedback."

// buildTranscript serializes a chat session into a role-labeled text block.
func buildTranscript(messages []models.Message) string {
	var b strings.Builder
	for _, m := range messages {
		speaker := "Candidate"
		if m.Role == models.MessageRoleInterviewer {
			speaker = "Interviewer"
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// buildEvaluationPrompt builds the scoring prompt. The rubric bands and the
// "score from the actual transcript, not template values" instruction are
// load-bearing: without them the model tends to return the same stock
// numbers for every interview.
func buildEvaluationPrompt(interviewType, transcript string) string {
	return fmt.Sprintf(`Based on the following interview conversation, produce an evaluation report that is objective, truthful, and consistent with the candidate's actual performance.

Interview type: %s

Conversation:
%s

---

# Scoring principles (score from the conversation content, never from examples or templates)

1. Overall score (overallScore)
   - Weigh content, professionalism, logic, language, and motivation fit
   - 0-50: poor performance or serious gaps in key abilities
   - 51-70: some ability but inconsistent or lacking depth
   - 71-85: good performance with most required abilities
   - 86-100: excellent performance, clearly suited to the position

2. Expression (expression)
   - Clarity, organization, confidence, logical consistency

3. Content depth (content)
   - Were answers concrete? Did they use cases? Did they demonstrate professional skill?
   - The score must reflect the level of detail actually present in the conversation

4. Structure (structure)
   - Organized answers (e.g. STAR, MECE) versus jumpy or confused ones

5. Language (language)
   - Clear, professional, appropriate wording and a mature tone

---

# Reply in JSON only (no extra text)

Output the following shape, generating real scores from the conversation rather than any example value:

{
  "overallScore": <number>,
  "expression": <number>,
  "content": <number>,
  "structure": <number>,
  "language": <number>,
  "strengths": ["at least 3 concrete strengths grounded in the conversation"],
  "improvements": ["at least 3 specific areas to improve, no generic filler"],
  "recommendations": ["at least 3 actionable practice suggestions tied to actual weaknesses"]
}

Important:
1. Do not reuse example scores; every number must be computed from the conversation.
2. Scores must reflect actual performance, never random values.
3. Do not add any text outside the JSON.`, interviewType, transcript)
}
