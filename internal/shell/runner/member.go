package runner

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tickerlab/finsight/internal/core/agent"
	"github.com/tickerlab/finsight/internal/core/domain"
	"github.com/tickerlab/finsight/internal/core/toolkit"
	"github.com/tickerlab/finsight/internal/shell/llm"
)

// outcome is one finished tool call: the trace record and the message the
// model sees.
type outcome struct {
	record domain.ToolCallRecord
	reply  llm.Message
	failed bool
}

// =============================================================================
// Delegation
// =============================================================================

// delegate executes the leader's delegation calls in parallel and returns
// the tool result messages in call order. Tool failures are rendered into
// the result text so the leader can react; only cancellation aborts.
func (r *Runner) delegate(ctx context.Context, prog *progress, calls []llm.ToolCall, events chan<- Event) ([]llm.Message, error) {
	run := prog.run

	// Announce every delegation up front so clients can show progress
	// lines before the slowest member finishes.
	names := make([]string, len(calls))
	for i, call := range calls {
		names[i] = r.team.Name
		if member, ok := r.team.MemberForTool(call.Name); ok {
			names[i] = member.Name
		}
		send(ctx, events, toolCallEvent(run.ID, names[i], call.Name, ToolStatusStarted))
	}

	outcomes := make([]outcome, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			record := domain.NewToolCallRecord(names[i], call.Name, call.Arguments)
			content, err := r.runDelegation(gctx, prog, call, events)
			if err != nil {
				if isCancellation(err) {
					return err
				}
				outcomes[i] = outcome{
					record: record.Finish(err),
					reply:  llm.ToolResultMessage(call.ID, "Error: "+err.Error()),
					failed: true,
				}
				return nil
			}
			outcomes[i] = outcome{
				record: record.Finish(nil),
				reply:  llm.ToolResultMessage(call.ID, content),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	replies := make([]llm.Message, 0, len(calls))
	for i, out := range outcomes {
		prog.recordToolCall(out.record)
		status := ToolStatusCompleted
		if out.failed {
			status = ToolStatusFailed
		}
		send(ctx, events, toolCallEvent(run.ID, names[i], calls[i].Name, status))
		replies = append(replies, out.reply)
	}
	return replies, nil
}

// runDelegation resolves one delegation call to its member agent and runs
// that member's loop. The member's final text becomes the tool result.
func (r *Runner) runDelegation(ctx context.Context, prog *progress, call llm.ToolCall, events chan<- Event) (string, error) {
	member, ok := r.team.MemberForTool(call.Name)
	if !ok {
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}

	args, err := toolkit.ParseArguments(call.Arguments)
	if err != nil {
		return "", fmt.Errorf("invalid arguments for %s: %w", call.Name, err)
	}
	task := agent.TaskFromArguments(args)
	if task == "" {
		task = prog.run.Input
	}

	return r.runMember(ctx, prog, member, task, events)
}

// =============================================================================
// Member Loop
// =============================================================================

// runMember runs a member agent on its task until it answers. Member text
// is not streamed to the client; tool events are.
func (r *Runner) runMember(ctx context.Context, prog *progress, member *agent.Agent, task string, events chan<- Event) (string, error) {
	msgs := []llm.Message{
		llm.SystemMessage(agent.SystemPrompt(member)),
		llm.UserMessage(task),
	}
	tools := member.Tools()

	for turn := 0; turn < r.config.MaxTurns; turn++ {
		result, err := r.chat.StreamChat(ctx, llm.Request{
			Model:       r.modelFor(member.Model),
			Messages:    msgs,
			Tools:       tools,
			Temperature: r.config.Temperature,
		}, nil)
		if err != nil {
			return "", err
		}

		prog.addUsage(result.Usage)

		if !result.HasToolCalls() {
			return result.Content, nil
		}

		msgs = append(msgs, llm.AssistantMessage(result.Content, result.ToolCalls))
		replies, err := r.invokeTools(ctx, prog, member, result.ToolCalls, events)
		if err != nil {
			return "", err
		}
		msgs = append(msgs, replies...)
	}

	return "", fmt.Errorf("%w: %s used %d turns", ErrMaxTurns, member.Name, r.config.MaxTurns)
}

// invokeTools executes a member's backend tool calls in parallel, returning
// result messages in call order. Failures become "Error: ..." results.
func (r *Runner) invokeTools(ctx context.Context, prog *progress, member *agent.Agent, calls []llm.ToolCall, events chan<- Event) ([]llm.Message, error) {
	run := prog.run

	for _, call := range calls {
		send(ctx, events, toolCallEvent(run.ID, member.Name, call.Name, ToolStatusStarted))
	}

	outcomes := make([]outcome, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			record := domain.NewToolCallRecord(member.Name, call.Name, call.Arguments)
			content, err := r.invokeTool(gctx, member, call)
			if err != nil {
				if isCancellation(err) {
					return err
				}
				outcomes[i] = outcome{
					record: record.Finish(err),
					reply:  llm.ToolResultMessage(call.ID, "Error: "+err.Error()),
					failed: true,
				}
				return nil
			}
			outcomes[i] = outcome{
				record: record.Finish(nil),
				reply:  llm.ToolResultMessage(call.ID, content),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	replies := make([]llm.Message, 0, len(calls))
	for i, out := range outcomes {
		prog.recordToolCall(out.record)
		status := ToolStatusCompleted
		if out.failed {
			status = ToolStatusFailed
		}
		send(ctx, events, toolCallEvent(run.ID, member.Name, calls[i].Name, status))
		replies = append(replies, out.reply)
	}
	return replies, nil
}

// invokeTool runs one backend tool of the member.
func (r *Runner) invokeTool(ctx context.Context, member *agent.Agent, call llm.ToolCall) (string, error) {
	tool, ok := member.FindTool(call.Name)
	if !ok {
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}

	args, err := toolkit.ParseArguments(call.Arguments)
	if err != nil {
		return "", fmt.Errorf("invalid arguments for %s: %w", call.Name, err)
	}

	return tool.Invoke(ctx, args)
}
