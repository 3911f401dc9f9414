package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"steward/internal/config"
	"steward/internal/hooks"
	hooksbuiltin "steward/internal/hooks/builtin"
	"steward/internal/jsvm"
	"steward/internal/policy"
	"steward/internal/policy/approval"
	"steward/internal/pubsub"
	"steward/internal/sched"
	"steward/internal/tools/builtin"
)

// RunOptions holds run command options.
type RunOptions struct {
	Session   string
	Agent     string
	Workspace string
	Yes       bool
	Stream    bool
	JSON      bool
	Timeout   time.Duration
}

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run [batch-file]",
		Short: "Schedule a batch of tool calls",
		Long: `Read a batch of tool-call requests (JSON) from a file or stdin,
schedule them through hooks, policy, and approval, and print the results.

The batch is either a JSON array of requests or an object with a "calls"
array. Each request has "name", "args", and an optional "call_id":

  [{"name": "shell", "args": {"command": "ls -la"}}]`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchPath := ""
			if len(args) > 0 {
				batchPath = args[0]
			}
			return RunBatch(cmd, batchPath, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Session, "session", "s", "cli", "session identifier")
	cmd.Flags().StringVarP(&opts.Agent, "agent", "a", "", "agent identifier (default primary)")
	cmd.Flags().StringVarP(&opts.Workspace, "workspace", "w", "", "workspace root for file tools")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "auto-approve all approval requests")
	cmd.Flags().BoolVar(&opts.Stream, "stream", true, "print live tool output")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "output results as JSON")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "overall batch timeout (0 = none)")

	return cmd
}

// RunBatch executes one batch end to end.
func RunBatch(cmd *cobra.Command, batchPath string, opts *RunOptions) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return fmt.Errorf("CLI context not initialized")
	}
	cfg := cliCtx.Config
	log := cliCtx.Log()

	requests, fromStdin, err := loadBatch(batchPath)
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		return fmt.Errorf("batch contains no tool calls")
	}

	workspace := opts.Workspace
	if workspace == "" {
		workspace = cfg.Workspace.Path
	}
	if workspace == "" {
		workspace, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve workspace: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	// Tool registry with the built-in set, minus anything disabled.
	registry, err := builtin.NewRegistryWithBuiltins(builtin.Options{WorkspaceRoot: workspace})
	if err != nil {
		return fmt.Errorf("register tools: %w", err)
	}
	for _, name := range cfg.Tools.Disabled {
		if err := registry.Unregister(name); err != nil {
			log.Warn().Str("tool", name).Msg("cannot disable unknown tool")
		}
	}

	// Hook manager, with the JavaScript runtime behind it when enabled.
	hookMgr := hooks.NewManager()
	defer hookMgr.Close()
	if err := hooksbuiltin.RegisterLoggingHooks(hookMgr, hooksbuiltin.LoggingConfig{Logger: log}); err != nil {
		return fmt.Errorf("register logging hooks: %w", err)
	}
	redactor, err := hooksbuiltin.NewSensitiveDataRedactor()
	if err != nil {
		return fmt.Errorf("build redaction hook: %w", err)
	}
	if err := hookMgr.Register(hooks.HookBeforeToolCall, redactor.Handler("builtin:redact")); err != nil {
		return fmt.Errorf("register redaction hook: %w", err)
	}
	if cfg.JSVM.Enabled {
		runtime := jsvm.NewRuntime(jsvm.DefaultRuntimeConfig(), *log)
		defer runtime.Close()
		hookMgr.SetJSRuntime(&jsRuntimeAdapter{runtime: runtime})
	}
	hookConfigPath := ""
	if p, perr := config.ExpandPath(cfg.Hooks.Path); perr == nil && p != "" {
		if _, statErr := os.Stat(p); statErr == nil {
			hookConfigPath = p
		}
	}

	policyPath, err := config.ExpandPath(cfg.Policy.Path)
	if err != nil {
		return fmt.Errorf("resolve policy path: %w", err)
	}
	executor, err := loadPolicyExecutor(policyPath)
	if err != nil {
		return err
	}
	if cfg.Policy.Watch && policyPath != "" {
		if watcher, werr := policy.NewWatcher(policyPath, executor); werr == nil {
			go watcher.Run(ctx)
		} else {
			log.Warn().Err(werr).Msg("policy watcher unavailable, hot reload disabled")
		}
	}

	store, err := cliCtx.GetAudit()
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}

	// Approval flow: requests fan out over the broker; the prompt loop
	// answers them from the terminal.
	broker := pubsub.NewBroker[approval.ApprovalEvent]()
	defer broker.Shutdown()
	manager := approval.NewManager(&approval.ManagerConfig{
		Notifier:   approval.NewNotifier(broker),
		Logger:     store,
		Timeout:    cfg.Approval.GetTimeout(),
		MaxPending: cfg.Approval.MaxPending,
	})
	defer manager.Close()

	interactive := !fromStdin && term.IsTerminal(int(os.Stdin.Fd()))
	go approvalPromptLoop(broker.Subscribe(ctx), manager, opts.Yes, interactive)

	done := make(chan []*sched.Call, 1)
	deps := sched.Deps{
		Tools:          registry,
		Hooks:          hookMgr,
		Policy:         executor,
		Approvals:      manager,
		Audit:          store,
		Workspace:      workspace,
		HookConfigPath: hookConfigPath,
		OnBatchComplete: func(instanceID string, calls []*sched.Call, isPrimary bool) {
			done <- calls
		},
	}

	instances := sched.NewRegistry()
	defer instances.CloseAll()

	inst, err := instances.Acquire(ctx, opts.Session, opts.Agent, deps)
	if err != nil {
		return fmt.Errorf("acquire scheduler: %w", err)
	}
	defer instances.Release(opts.Session, opts.Agent)

	if opts.Stream && !opts.JSON {
		go streamOutput(inst.SubscribeOutput(ctx), cmd.ErrOrStderr())
	}

	if err := inst.Schedule(ctx, requests); err != nil {
		return err
	}

	var calls []*sched.Call
	select {
	case calls = <-done:
	case <-ctx.Done():
		// The batch context is derived from ctx, so every call settles as
		// cancelled and the completion event still fires.
		inst.CancelAll()
		select {
		case calls = <-done:
		case <-time.After(10 * time.Second):
			return fmt.Errorf("timed out waiting for cancelled batch to settle")
		}
	}

	return printResults(cmd.OutOrStdout(), calls, opts.JSON)
}

// loadBatch reads tool-call requests from the given file, or stdin when the
// path is empty or "-". The second return reports whether stdin was consumed.
func loadBatch(path string) ([]sched.Request, bool, error) {
	var data []byte
	var err error
	fromStdin := path == "" || path == "-"

	if fromStdin {
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, true, fmt.Errorf("read batch from stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, false, fmt.Errorf("read batch file: %w", err)
		}
	}

	var requests []sched.Request
	if err := json.Unmarshal(data, &requests); err == nil {
		return requests, fromStdin, nil
	}

	var wrapper struct {
		Calls []sched.Request `json:"calls"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fromStdin, fmt.Errorf("parse batch: %w", err)
	}
	return wrapper.Calls, fromStdin, nil
}

// loadPolicyExecutor builds the policy checker from the configured file,
// falling back to the built-in default policy when no file exists.
func loadPolicyExecutor(path string) (*policy.PolicyExecutor, error) {
	pcfg, err := policy.LoadConfig(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			pcfg = policy.DefaultConfig()
		} else {
			return nil, fmt.Errorf("load policy: %w", err)
		}
	}
	return policy.NewPolicyExecutor(&pcfg.ToolPolicy), nil
}

// approvalPromptLoop answers approval requests as they arrive. Requests are
// handled one at a time in arrival order.
func approvalPromptLoop(events <-chan pubsub.Event[approval.ApprovalEvent], manager *approval.Manager, autoApprove, interactive bool) {
	reader := bufio.NewReader(os.Stdin)

	for ev := range events {
		if ev.Type != pubsub.EventCreated || ev.Payload.Request == nil {
			continue
		}
		req := ev.Payload.Request

		if autoApprove {
			_ = manager.HandleResponse(req.ID, true, "auto-approved")
			continue
		}
		if !interactive {
			_ = manager.HandleResponse(req.ID, false, "no interactive terminal available for approval")
			continue
		}

		fmt.Fprintf(os.Stderr, "\nApproval required for tool %q\n", req.ToolName)
		if req.Reason != "" {
			fmt.Fprintf(os.Stderr, "  Reason:    %s\n", req.Reason)
		}
		fmt.Fprintf(os.Stderr, "  Arguments: %s\n", req.Arguments)
		fmt.Fprint(os.Stderr, "Allow? [y/N]: ")

		line, err := reader.ReadString('\n')
		if err != nil {
			_ = manager.HandleResponse(req.ID, false, "approval prompt aborted")
			continue
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		if answer == "y" || answer == "yes" {
			_ = manager.HandleResponse(req.ID, true, "approved at terminal")
		} else {
			_ = manager.HandleResponse(req.ID, false, "rejected at terminal")
		}
	}
}

// streamOutput copies live output chunks to w as they arrive.
func streamOutput(events <-chan pubsub.Event[sched.OutputEvent], w io.Writer) {
	for ev := range events {
		fmt.Fprint(w, ev.Payload.Chunk)
	}
}

// printResults renders terminal call outcomes.
func printResults(w io.Writer, calls []*sched.Call, asJSON bool) error {
	if asJSON {
		responses := make([]*sched.Response, 0, len(calls))
		for _, call := range calls {
			responses = append(responses, call.Response())
		}
		data, err := json.MarshalIndent(responses, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return batchError(calls)
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "CALL\tTOOL\tSTATUS\tDURATION\tDETAIL")
	for _, call := range calls {
		resp := call.Response()
		detail := ""
		if resp.Err != nil {
			detail = resp.Err.Message
		} else if resp.SystemMessage != "" {
			detail = resp.SystemMessage
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			shortID(call.ID()), call.Request().Name, resp.Status,
			call.Duration().Round(time.Millisecond), detail)
	}
	tw.Flush()

	for _, call := range calls {
		resp := call.Response()
		if resp.Status != sched.StatusSuccess || resp.SuppressOutput || resp.Content == "" {
			continue
		}
		fmt.Fprintf(w, "\n--- %s (%s) ---\n%s\n", call.Request().Name, shortID(call.ID()), resp.Content)
	}

	return batchError(calls)
}

// batchError converts failed calls into a command error so the process exits
// nonzero when any call errored.
func batchError(calls []*sched.Call) error {
	failed := 0
	for _, call := range calls {
		if call.Status() == sched.StatusError {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tool calls failed", failed, len(calls))
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
