package conversation

import (
	"strings"
	"time"
)

// Profile describes how the agent behaves in one kind of conversation.
// Text fields may contain {{candidate_name}}, {{role}}, {{salary_range}} and
// {{email}} placeholders.
type Profile struct {
	Name string

	Instruction string
	Greeting    string
	// GreetFromModel asks the model for the opening line and falls back to
	// Greeting when the request fails.
	GreetFromModel bool

	EndMarker  string
	EndPhrases []string

	Closing      string
	RetryPrompt  string
	RepeatPrompt string

	Temperature float64
	MaxTokens   int

	HistoryWindow int
	MaxDuration   time.Duration
	MaxNoResponse int
}

// Render substitutes session values into a profile text.
func Render(text string, s SessionContext) string {
	vars := s.Vars()
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// PhoneScreen is the shortlisting call: salary negotiation and availability.
func PhoneScreen() Profile {
	return Profile{
		Name: "phone-screen",
		Instruction: `You are an expert HR Recruiter at Agentic HR. You are calling {{candidate_name}} who has been shortlisted for the {{role}} position.
Your goals are:
1. Congratulate them on being shortlisted.
2. Discuss the Role briefly.
3. NEGOTIATION: The salary range is {{salary_range}}. Your objective is to convince them to agree to the LOWER end of this range. Be persuasive but professional. Explain that we offer great benefits, stock options, and growth to justify the lower base pay.
4. SCHEDULING: Once salary is discussed (agreed or noted), ask for their availability for a technical interview (Date and Time). Make sure to get a specific slot.
5. When the slot is agreed, thank them and say goodbye, then add [END_CALL].

Keep your responses concise (1-2 sentences) as this is a voice conversation. Speak naturally.`,
		Greeting:      "Hello {{candidate_name}}, this is a call from Agentic HR. Am I speaking with {{candidate_name}}?",
		EndMarker:     "[END_CALL]",
		EndPhrases:    []string{"goodbye", "have a great day"},
		Closing:       "Thank you for your time today. Our team will follow up with the interview details. Goodbye!",
		RetryPrompt:   "I'm having trouble hearing you. Could you repeat that?",
		RepeatPrompt:  "I didn't catch that clearly. Could you please repeat?",
		Temperature:   0.7,
		MaxTokens:     150,
		HistoryWindow: 8,
		MaxDuration:   15 * time.Minute,
		MaxNoResponse: 3,
	}
}

// Interview is the spoken AI interview held over a video meeting.
func Interview() Profile {
	return Profile{
		Name: "interview",
		Instruction: `You are an AI interviewer at Agentic HR conducting an interview with {{candidate_name}} for the {{role}} position.

INTERVIEW GUIDELINES:
1. Start with a warm welcome and ask them to introduce themselves.
2. Ask ONE question at a time. Wait for their answer before proceeding.
3. Cover these topics naturally: background, skills, experience, role-specific questions, salary expectations, availability.
4. Keep responses short (1-2 sentences) for clear speech.
5. Be friendly, professional, and conversational.

CONCLUSION:
- When you have covered all important topics (background, skills, role questions, salary), conclude the interview naturally.
- If the candidate seems unresponsive or gives very short answers repeatedly, politely wrap up.
- To end the interview, include the exact phrase [END_INTERVIEW] at the end of your final message.

Example final message: "Thank you so much for your time today, {{candidate_name}}. We've covered everything we needed. Our team will review your application and get back to you soon. Have a great day! [END_INTERVIEW]"

No markdown in responses.`,
		Greeting:       "Hello {{candidate_name}}! Welcome to your interview for the {{role}} position. Please tell me about yourself.",
		GreetFromModel: true,
		EndMarker:      "[END_INTERVIEW]",
		Closing:        "Thank you so much for your time today. We've covered everything we needed. Our team will review your application and get back to you soon. Have a great day!",
		RetryPrompt:    "I didn't catch that. Please take your time and respond when you're ready.",
		RepeatPrompt:   "I didn't catch that clearly. Could you please repeat?",
		Temperature:    0.7,
		MaxTokens:      200,
		HistoryWindow:  8,
		MaxDuration:    40 * time.Minute,
		MaxNoResponse:  3,
	}
}
