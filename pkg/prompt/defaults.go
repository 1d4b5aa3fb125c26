package prompt

// Names of the built-in templates.
const (
	ReactPolicy      = "react_policy"
	ChatPolicySystem = "chat_policy_system"
	ChatPolicyUser   = "chat_policy_user"
	Synthesize       = "synthesize"
	ForcedFinal      = "forced_final"
	Reformulate      = "reformulate"
)

// ActionView is an action as listed in a prompt.
type ActionView struct {
	Name        string
	Description string
}

// StateView is the current state as shown in a prompt.
type StateView struct {
	Name        string
	Description string
}

// ResourceView is a citable document as shown in a prompt.
type ResourceView struct {
	Content string
	Source  string
}

// PolicyData feeds the policy templates.
type PolicyData struct {
	Role           string
	Task           string
	Context        string
	History        string
	State          *StateView
	Actions        []ActionView
	ResponseFormat string
}

// AnswerData feeds the synthesize and forced_final templates.
type AnswerData struct {
	Role      string
	Task      string
	Context   string
	History   string
	Feedback  string
	Resources []ResourceView
}

// ReformulateData feeds the reformulate template.
type ReformulateData struct {
	Task   string
	Action string
	Args   string
	Query  string
}

const reactPolicyBody = `You are {{.Role}}.
Decide the single next action that moves the task forward.

Task: {{.Task}}
{{- if .State}}

Current state: {{.State.Name}}{{if .State.Description}} - {{.State.Description}}{{end}}
{{- end}}
{{- if .Context}}

Conversation so far:
{{.Context}}
{{- end}}
{{- if .History}}

Actions taken so far:
{{.History}}
{{- end}}

You can use one of the following actions:
{{range .Actions}}- {{.Name}}: {{.Description}}
{{end}}
You should only respond in JSON format as described below.
Response Format:
{{.ResponseFormat}}
Ensure the response can be parsed by a JSON decoder.`

const chatPolicySystemBody = `You are {{.Role}}.
Every turn you pick exactly one action.

You can use one of the following actions:
{{range .Actions}}- {{.Name}}: {{.Description}}
{{end}}
You should only respond in JSON format as described below.
Response Format:
{{.ResponseFormat}}
Ensure the response can be parsed by a JSON decoder.`

const chatPolicyUserBody = `Task: {{.Task}}
{{- if .State}}
Current state: {{.State.Name}}{{if .State.Description}} - {{.State.Description}}{{end}}
{{- end}}
{{- if .Context}}

Conversation so far:
{{.Context}}
{{- end}}
{{- if .History}}

Actions taken so far:
{{.History}}
{{- end}}

What is the next action?`

const synthesizeBody = `You are {{.Role}}.
Answer the task using only the information below. Be concise.
{{- if .Resources}}

Resources:
{{range $i, $r := .Resources}}[{{inc $i}}] {{trim $r.Content}}
{{end}}
{{- end}}
{{- if .Context}}

Conversation:
{{.Context}}
{{- end}}
{{- if .History}}

Actions taken:
{{.History}}
{{- end}}
{{- if .Feedback}}

Your previous answer was rejected:
{{.Feedback}}
{{- end}}

Task: {{.Task}}
Answer:`

const forcedFinalBody = `You are {{.Role}}.
You have used all the steps available for this task. Give your best final answer now, using only the information gathered so far. Do not ask for more actions.
{{- if .Context}}

Conversation:
{{.Context}}
{{- end}}
{{- if .History}}

Actions taken:
{{.History}}
{{- end}}

Task: {{.Task}}
Answer:`

const reformulateBody = `Task: {{.Task}}

The {{.Action}} action was chosen twice in a row with the same arguments {{.Args}}, so running it again would find nothing new.
Reformulate the query "{{.Query}}" with different wording or a narrower focus.
Reply with the new query only.`

// Defaults returns a store seeded with the built-in templates at version 1.
func Defaults() *Store {
	s := NewStore()
	for name, body := range map[string]string{
		ReactPolicy:      reactPolicyBody,
		ChatPolicySystem: chatPolicySystemBody,
		ChatPolicyUser:   chatPolicyUserBody,
		Synthesize:       synthesizeBody,
		ForcedFinal:      forcedFinalBody,
		Reformulate:      reformulateBody,
	} {
		if _, issues, err := s.Save(Prompt{Name: name, Body: body, Meta: map[string]string{"origin": "builtin"}}); err != nil {
			panic("prompt: built-in " + name + " invalid: " + issues[0].Message)
		}
	}
	return s
}
