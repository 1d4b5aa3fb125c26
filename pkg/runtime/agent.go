// Package runtime drives an agent through its run-loop: select an action with
// the policy, execute it, fold the observation into the belief, and finish by
// synthesizing an answer that is checked by the output validators.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wilhg/sherpa/pkg/action"
	"github.com/wilhg/sherpa/pkg/action/tools"
	"github.com/wilhg/sherpa/pkg/adapters/llm"
	"github.com/wilhg/sherpa/pkg/belief"
	"github.com/wilhg/sherpa/pkg/config"
	"github.com/wilhg/sherpa/pkg/errmodel"
	"github.com/wilhg/sherpa/pkg/logging"
	"github.com/wilhg/sherpa/pkg/policy"
	"github.com/wilhg/sherpa/pkg/prompt"
	"github.com/wilhg/sherpa/pkg/tokenizer"
	"github.com/wilhg/sherpa/pkg/validation"
)

// QueryArg is the argument the repeated-action hook rewrites.
const QueryArg = "query"

// NoAnswer is returned when the model produced an empty final answer.
const NoAnswer = "I could not produce an answer for this task."

// SnapshotSink persists belief snapshots taken during a run.
type SnapshotSink interface {
	SaveSnapshot(ctx context.Context, s belief.Snapshot) error
}

// TaskAgent runs one task at a time against its belief. It is not safe for
// concurrent Run calls.
type TaskAgent struct {
	name        string
	description string
	model       llm.LLM
	policy      policy.Policy
	belief      *belief.Belief
	prompts     *prompt.Store
	role        string

	maxIterations      int
	maxValidationSteps int
	validators         []validation.Validator
	repeated           RepeatedActionHook

	count         tokenizer.Counter
	contextBudget int
	historyBudget int
	modelOpts     map[string]any
	logger        logging.Logger

	snapshots        SnapshotSink
	snapshotInterval int
}

// Option configures a TaskAgent at construction time.
type Option func(*TaskAgent)

// WithDescription sets the agent description.
func WithDescription(d string) Option { return func(a *TaskAgent) { a.description = d } }

// WithPolicy replaces the default ReAct policy.
func WithPolicy(p policy.Policy) Option { return func(a *TaskAgent) { a.policy = p } }

// WithBelief supplies an existing belief, for example one restored from the pool.
func WithBelief(b *belief.Belief) Option {
	return func(a *TaskAgent) {
		if b != nil {
			a.belief = b
		}
	}
}

// WithPrompts replaces the template store used for synthesis.
func WithPrompts(s *prompt.Store) Option { return func(a *TaskAgent) { a.prompts = s } }

// WithRole sets the role line used in synthesis prompts.
func WithRole(role string) Option { return func(a *TaskAgent) { a.role = role } }

// WithMaxIterations bounds the number of policy steps per run.
func WithMaxIterations(n int) Option {
	return func(a *TaskAgent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

// WithValidators sets the validators applied to the synthesized answer, and
// how many times a rejected answer is regenerated.
func WithValidators(maxSteps int, vs ...validation.Validator) Option {
	return func(a *TaskAgent) {
		a.validators = vs
		if maxSteps >= 0 {
			a.maxValidationSteps = maxSteps
		}
	}
}

// WithRepeatedActions sets the action names the reformulation hook watches.
// Calling it with no names watches every action.
func WithRepeatedActions(names ...string) Option {
	return func(a *TaskAgent) { a.repeated = RepeatedActionHook{Names: names, Enabled: true} }
}

// WithoutReformulation disables the repeated-action hook.
func WithoutReformulation() Option {
	return func(a *TaskAgent) { a.repeated = RepeatedActionHook{} }
}

// WithTokenizer sets the counter used to budget prompts.
func WithTokenizer(c tokenizer.Counter) Option {
	return func(a *TaskAgent) {
		if c != nil {
			a.count = c
		}
	}
}

// WithBudgets sets the token budgets for context and action history.
func WithBudgets(contextTokens, historyTokens int) Option {
	return func(a *TaskAgent) { a.contextBudget, a.historyBudget = contextTokens, historyTokens }
}

// WithModelOptions passes opts to every synthesis call.
func WithModelOptions(opts map[string]any) Option { return func(a *TaskAgent) { a.modelOpts = opts } }

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option { return func(a *TaskAgent) { a.logger = logging.OrNoOp(l) } }

// WithSnapshot saves a belief snapshot to sink every interval iterations and
// at the end of each run. If interval <= 0 or sink is nil, snapshotting is disabled.
func WithSnapshot(sink SnapshotSink, interval int) Option {
	return func(a *TaskAgent) {
		if sink != nil && interval > 0 {
			a.snapshots = sink
			a.snapshotInterval = interval
		}
	}
}

// ConfigOptions translates the agent section of cfg into options.
func ConfigOptions(cfg *config.Config) []Option {
	if cfg == nil {
		return nil
	}
	ac := cfg.Agent
	return []Option{
		WithMaxIterations(ac.MaxIterations),
		WithBudgets(ac.ContextTokenBudget, ac.HistoryTokenBudget),
		WithTokenizer(tokenizer.ForModel(ac.TokenizerModel)),
		WithRepeatedActions(ac.RepeatedActions...),
		WithValidators(ac.MaxValidationSteps,
			validation.NumberValidation{},
			validation.NewCitationValidation(validation.CitationConfig{
				SequenceThreshold:    cfg.Validation.SequenceThreshold,
				ContainmentThreshold: cfg.Validation.ContainmentThreshold,
				JaccardThreshold:     cfg.Validation.JaccardThreshold,
			})),
		WithModelOptions(map[string]any{"temperature": cfg.LLM.Temperature}),
	}
}

// NewTaskAgent builds an agent. Without WithPolicy it uses a ReactPolicy over
// model sharing the agent's prompts, role, tokenizer, budgets and logger.
func NewTaskAgent(name string, model llm.LLM, opts ...Option) *TaskAgent {
	a := &TaskAgent{
		name:               name,
		model:              model,
		belief:             belief.New(),
		prompts:            prompt.Defaults(),
		role:               "a helpful assistant",
		maxIterations:      5,
		maxValidationSteps: 1,
		repeated:           DefaultRepeatedActionHook(),
		count:              tokenizer.Runes,
		contextBudget:      3000,
		historyBudget:      1500,
		logger:             logging.NoOpLogger{},
	}
	for _, o := range opts {
		o(a)
	}
	a.logger = logging.With(a.logger, "agent", a.name)
	if a.policy == nil {
		a.policy = policy.NewReactPolicy(model,
			policy.WithRole(a.role),
			policy.WithPrompts(a.prompts),
			policy.WithTokenizer(a.count),
			policy.WithBudgets(a.contextBudget, a.historyBudget),
			policy.WithLogger(a.logger),
		)
	}
	return a
}

func (a *TaskAgent) Name() string           { return a.name }
func (a *TaskAgent) Description() string    { return a.description }
func (a *TaskAgent) Belief() *belief.Belief { return a.belief }

// Run records task in the belief and loops until the policy selects finish or
// the iteration budget is spent. It always produces an answer; the error is
// non-nil only when ctx ends first.
func (a *TaskAgent) Run(ctx context.Context, task string) (string, error) {
	tr := otel.Tracer("runtime/agent")
	ctx, span := tr.Start(ctx, "TaskAgent.Run", trace.WithAttributes(
		attribute.String("agent.name", a.name),
		attribute.Int("agent.max_iterations", a.maxIterations),
	))
	defer span.End()

	if task != "" {
		a.belief.SetCurrentTask(task)
	}
	var prev policy.Output
	for i := 0; i < a.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			return "", err
		}
		log := logging.With(a.logger, "iteration", i)
		out, err := a.policy.SelectAction(ctx, a.belief)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if errmodel.IsUpstream(err) {
				span.RecordError(err)
				return a.fail(ctx, err), nil
			}
			log.Warn("policy failed", "error", err)
			a.belief.AddEvent(belief.EventFeedback, a.name, invalidOutputFeedback(err), nil)
			a.checkpoint(ctx, i)
			continue
		}
		if tools.IsFinish(out.Action) {
			span.SetAttributes(attribute.Int("agent.iterations", i+1))
			return a.finish(ctx, prompt.Synthesize)
		}
		if a.repeated.Triggered(prev, out) {
			next, err := a.reformulate(ctx, out)
			switch {
			case next != nil:
				log.Info("repeated action, query reformulated", "action", out.Action.Name(), "query", next.Args[QueryArg])
				out = *next
			case err != nil && ctx.Err() != nil:
				return "", ctx.Err()
			case errmodel.IsUpstream(err):
				span.RecordError(err)
				return a.fail(ctx, err), nil
			default:
				if err != nil {
					log.Warn("reformulation failed", "error", err)
				}
				log.Info("repeated action skipped", "action", out.Action.Name())
				a.belief.AddEvent(belief.EventFeedback, a.name, repeatedFeedback(out), nil)
				a.checkpoint(ctx, i)
				continue
			}
		}
		prev = out

		log.Debug("executing action", "action", out.Action.Name())
		a.belief.AddEvent(belief.EventAction, a.name, describeCall(out), out.Args)
		if _, err := action.Call(ctx, out.Action, out.Args, a.belief); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if errmodel.IsUpstream(err) {
				span.RecordError(err)
				return a.fail(ctx, err), nil
			}
			log.Warn("action failed", "action", out.Action.Name(), "error", err)
		}
		a.checkpoint(ctx, i)
	}
	a.logger.Info("iteration budget spent, forcing final answer", "max_iterations", a.maxIterations)
	span.SetAttributes(attribute.Bool("agent.forced_final", true))
	return a.finish(ctx, prompt.ForcedFinal)
}

// finish synthesizes the answer with tmpl, revalidating up to
// maxValidationSteps times, and records it as a result event.
func (a *TaskAgent) finish(ctx context.Context, tmpl string) (string, error) {
	text, err := a.synthesize(ctx, tmpl)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return a.fail(ctx, err), nil
	}
	if strings.TrimSpace(text) == "" {
		text = NoAnswer
	}
	a.belief.AddEvent(belief.EventResult, a.name, text, nil)
	a.snapshot(ctx)
	return text, nil
}

func (a *TaskAgent) synthesize(ctx context.Context, tmpl string) (string, error) {
	var feedback string
	for attempt := 0; ; attempt++ {
		data := prompt.AnswerData{
			Role:     a.role,
			Task:     a.belief.CurrentTask(),
			Context:  a.belief.Context(a.count, a.contextBudget),
			History:  a.belief.InternalHistory(a.count, a.historyBudget),
			Feedback: feedback,
		}
		for _, r := range a.belief.Resources() {
			data.Resources = append(data.Resources, prompt.ResourceView{Content: r.Content, Source: r.Source})
		}
		text, err := a.prompts.Render(tmpl, data)
		if err != nil {
			return "", errmodel.System("prompt_error", "render "+tmpl, nil, err)
		}
		answer, err := llm.Prompt(ctx, a.model, text, a.modelOpts)
		if err != nil {
			return "", err
		}
		answer = strings.TrimSpace(answer)
		if len(a.validators) == 0 {
			return answer, nil
		}
		res := validation.Chain(ctx, a.validators, answer, a.belief)
		if res.Valid {
			return res.Result, nil
		}
		a.logger.Info("answer rejected", "attempt", attempt, "feedback", res.Feedback)
		if attempt >= a.maxValidationSteps {
			return res.Result, nil
		}
		feedback = res.Feedback
		a.belief.AddEvent(belief.EventFeedback, a.name, feedback, nil)
	}
}

// fail turns an unrecoverable error into the final answer.
func (a *TaskAgent) fail(ctx context.Context, err error) string {
	a.logger.Error("task failed", "error", err)
	msg := err.Error()
	if ce := errmodel.From(err); ce != nil {
		msg = ce.Message
	}
	text := fmt.Sprintf("The task could not be completed: %s", msg)
	a.belief.AddEvent(belief.EventResult, a.name, text, nil)
	a.snapshot(ctx)
	return text
}

// reformulate asks the model for a new query for a repeated action. It returns
// nil when the action takes no query or the model offered nothing different.
func (a *TaskAgent) reformulate(ctx context.Context, out policy.Output) (*policy.Output, error) {
	query, ok := out.Args[QueryArg].(string)
	if !ok {
		return nil, nil
	}
	args, _ := json.Marshal(out.Args)
	text, err := a.prompts.Render(prompt.Reformulate, prompt.ReformulateData{
		Task:   a.belief.CurrentTask(),
		Action: out.Action.Name(),
		Args:   string(args),
		Query:  query,
	})
	if err != nil {
		return nil, errmodel.System("prompt_error", "render "+prompt.Reformulate, nil, err)
	}
	reply, err := llm.Prompt(ctx, a.model, text, a.modelOpts)
	if err != nil {
		return nil, err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(reply), "\n")
	next := strings.Trim(strings.TrimSpace(line), "\"'`")
	if next == "" || strings.EqualFold(next, query) {
		return nil, nil
	}
	reformulated := maps.Clone(out.Args)
	reformulated[QueryArg] = next
	return &policy.Output{Action: out.Action, Args: reformulated}, nil
}

func repeatedFeedback(out policy.Output) string {
	args, _ := json.Marshal(out.Args)
	return fmt.Sprintf("You already ran %s with %s and it gave nothing new. Choose a different action or different arguments.", out.Action.Name(), args)
}

func (a *TaskAgent) checkpoint(ctx context.Context, iteration int) {
	if a.snapshots != nil && (iteration+1)%a.snapshotInterval == 0 {
		a.snapshot(ctx)
	}
}

func (a *TaskAgent) snapshot(ctx context.Context) {
	if a.snapshots == nil {
		return
	}
	if err := a.snapshots.SaveSnapshot(ctx, a.belief.Snapshot()); err != nil {
		a.logger.Error("save snapshot", "error", err)
	}
}

func describeCall(out policy.Output) string {
	if len(out.Args) == 0 {
		return out.Action.Name()
	}
	b, _ := json.Marshal(out.Args)
	return fmt.Sprintf("%s %s", out.Action.Name(), b)
}

func invalidOutputFeedback(err error) string {
	msg := err.Error()
	var ce *errmodel.Error
	if errors.As(err, &ce) {
		msg = ce.Message
	}
	return fmt.Sprintf("Your previous output was invalid: %s. Respond with one of the listed actions in the required JSON format.", msg)
}
