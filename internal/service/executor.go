package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hakola/stageflow/internal"
	"github.com/hakola/stageflow/internal/security"
	"github.com/hakola/stageflow/internal/store"
	"github.com/hakola/stageflow/internal/workflow"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Executor runs one matrix cell's steps inside its own checkout on an
// agent. Cells never share an executor: each gets an isolated working
// directory, so a failing cell cannot disturb a sibling.
type Executor interface {
	RunStep(
		ctx context.Context,
		step workflow.Step,
		env map[string]string,
		timeout time.Duration,
		out func(string),
	) error
	ReadFile(ctx context.Context, relPath string) ([]byte, error)
	ListFiles(ctx context.Context, relDir string) ([]string, error)
	Close() error
}

// ExecutorProvider places a cell on an agent matching its OS and
// returns an executor bound to a fresh clone of the run's commit.
type ExecutorProvider interface {
	ExecutorFor(ctx context.Context, rc *RunContext, cell workflow.Cell) (Executor, error)
}

type AgentReader interface {
	ReadAgentByOSLabel(context.Context, string) (*store.Agent, error)
	ListAgents(context.Context) ([]*store.Agent, error)
}

type SSHExecutorProvider struct {
	agentStore   AgentReader
	aesEncrypter security.Encrypter
}

func NewSSHExecutorProvider(
	agentStore AgentReader,
	aesEncrypter security.Encrypter,
) *SSHExecutorProvider {
	return &SSHExecutorProvider{agentStore: agentStore, aesEncrypter: aesEncrypter}
}

func (p *SSHExecutorProvider) ExecutorFor(
	ctx context.Context,
	rc *RunContext,
	cell workflow.Cell,
) (Executor, error) {
	return p.executorAt(ctx, rc, cell, cell.Label())
}

// LoadWorkflow clones the run's commit into its own subdirectory on
// any agent and parses the workflow script found at scriptPath.
func (p *SSHExecutorProvider) LoadWorkflow(
	ctx context.Context,
	rc *RunContext,
	scriptPath string,
) (*workflow.Workflow, error) {
	ex, err := p.executorAt(ctx, rc, workflow.Cell{}, "script")
	if err != nil {
		return nil, err
	}
	defer ex.Close()

	b, err := ex.ReadFile(ctx, scriptPath)
	if err != nil {
		return nil, err
	}
	return workflow.Parse(b)
}

func (p *SSHExecutorProvider) executorAt(
	ctx context.Context,
	rc *RunContext,
	cell workflow.Cell,
	subdir string,
) (Executor, error) {
	agent, err := p.agentFor(ctx, cell)
	if err != nil {
		return nil, err
	}

	privateKey, err := p.aesEncrypter.DecryptAES(agent.SSHPrivateKeyHash)
	if err != nil {
		return nil, err
	}
	client, err := connectSSH(agent.Username, agent.Hostname, privateKey)
	if err != nil {
		return nil, err
	}

	ex := &SSHExecutor{
		client:     client,
		workspace:  agent.Workspace,
		workdir:    path.Join(rc.Workdir, subdir),
		repository: rc.Pipeline.Repository,
	}
	if err := ex.cloneRepository(ctx, rc); err != nil {
		client.Close()
		return nil, err
	}
	return ex, nil
}

func (p *SSHExecutorProvider) agentFor(
	ctx context.Context,
	cell workflow.Cell,
) (*store.Agent, error) {
	if cell.OS != "" {
		return p.agentStore.ReadAgentByOSLabel(ctx, cell.OS)
	}
	agents, err := p.agentStore.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("no agents registered")
	}
	return agents[0], nil
}

func connectSSH(username, hostname string, privateKey []byte) (*ssh.Client, error) {
	signer, err := ssh.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	auth := ssh.PublicKeys(signer)
	cc := &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	split := strings.Split(hostname, ":")
	if len(split) == 1 {
		hostname += ":22"
	}
	return ssh.Dial("tcp", hostname, cc)
}

// SSHExecutor runs cell steps on a remote agent over SSH, reading
// files back over SFTP.
type SSHExecutor struct {
	client     *ssh.Client
	workspace  string
	workdir    string
	repository string
}

func (ex *SSHExecutor) repoDir() string {
	repoDir := ex.repository[strings.LastIndex(ex.repository, "/")+1:]
	return strings.TrimSuffix(repoDir, ".git")
}

func (ex *SSHExecutor) baseDir() string {
	return path.Join(ex.workspace, ex.workdir, ex.repoDir())
}

func (ex *SSHExecutor) cloneRepository(ctx context.Context, rc *RunContext) error {
	cloneTimeout := internal.Config.CloneTimeout.Duration()
	if err := ex.runCommand(
		ctx,
		fmt.Sprintf("mkdir -p %s/%s", ex.workspace, ex.workdir),
		5*time.Second,
		nil,
	); err != nil {
		return err
	}
	checkout := rc.Event.Branch()
	if rc.Event.IsTag() {
		checkout = rc.Event.Tag()
	}
	if checkout == "" {
		checkout = rc.Pipeline.MainBranch
	}
	cmd := fmt.Sprintf(
		"cd %s && cd %s && git clone -b %s %s",
		ex.workspace, ex.workdir, checkout, ex.repository,
	)
	return ex.runCommand(ctx, cmd, cloneTimeout, nil)
}

func (ex *SSHExecutor) RunStep(
	ctx context.Context,
	step workflow.Step,
	env map[string]string,
	timeout time.Duration,
	out func(string),
) error {
	cmd := fmt.Sprintf("cd %s && %s%s", ex.baseDir(), envPrefix(env), step.Script)
	if err := ex.runCommand(ctx, cmd, timeout, out); err != nil {
		var timeoutErr StepTimeoutError
		if errors.As(err, &timeoutErr) {
			return StepTimeoutError{Step: step.Step, Seconds: int64(timeout.Seconds())}
		}
		return err
	}
	return nil
}

// envPrefix renders env assignments inline ahead of the script so the
// step sees them regardless of the agent's sshd AcceptEnv policy.
func envPrefix(env map[string]string) string {
	if len(env) == 0 {
		return ""
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&builder, "%s='%s' ", k, strings.ReplaceAll(env[k], "'", `'"'"'`))
	}
	return builder.String()
}

func (ex *SSHExecutor) runCommand(
	ctx context.Context,
	cmd string,
	timeout time.Duration,
	out func(string),
) error {
	sess, err := ex.client.NewSession()
	if err != nil {
		return err
	}
	defer sess.Close()
	stdout, err := sess.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		return err
	}

	doneCh := make(chan error, 1)
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go func() {
		if err := sess.Start(cmd); err != nil {
			doneCh <- errors.Join(fmt.Errorf("err starting command %s", cmd), err)
			return
		}

		wait := drainOutputs(stdout, stderr, out)
		err := sess.Wait()
		wait()
		doneCh <- err
	}()

	select {
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			sess.Signal(ssh.SIGINT)
			sess.Close()
			<-doneCh
			return RunCancelError{Message: "step execution cancelled"}
		}
		// closing the session EOFs the pipes, so the scanners are
		// joined before out goes out of scope
		sess.Close()
		<-doneCh
		return StepTimeoutError{Seconds: int64(timeout.Seconds())}
	case err := <-doneCh:
		return err
	}
}

// drainOutputs streams both session pipes through out. stdout and
// stderr share the session's flow-control window, so they must drain
// concurrently: reading them one after the other can wedge the remote
// process behind an undrained stderr while stdout stays quiet. The
// out calls are serialized, keeping single-writer sinks safe.
func drainOutputs(stdout, stderr io.Reader, out func(string)) (wait func()) {
	var mu sync.Mutex
	locked := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		if out != nil {
			out(s)
		}
	}
	var wg sync.WaitGroup
	wg.Go(func() { scanOutput(stdout, locked) })
	wg.Go(func() { scanOutput(stderr, locked) })
	return wg.Wait
}

func scanOutput(r io.Reader, out func(string)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if out != nil {
			out(scanner.Text() + "\n")
		}
	}
}

func (ex *SSHExecutor) ReadFile(ctx context.Context, relPath string) ([]byte, error) {
	sftpClient, err := sftp.NewClient(ex.client)
	if err != nil {
		return nil, err
	}
	defer sftpClient.Close()

	f, err := sftpClient.Open(path.Join(ex.baseDir(), relPath))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

func (ex *SSHExecutor) ListFiles(ctx context.Context, relDir string) ([]string, error) {
	sftpClient, err := sftp.NewClient(ex.client)
	if err != nil {
		return nil, err
	}
	defer sftpClient.Close()

	dir := path.Join(ex.baseDir(), relDir)
	infos, err := sftpClient.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(infos))
	for _, info := range infos {
		if !info.IsDir() {
			files = append(files, path.Join(relDir, info.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (ex *SSHExecutor) Close() error {
	return ex.client.Close()
}
