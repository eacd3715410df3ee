package runtime

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/forgelabs/bastion/pkg/config"
	"github.com/forgelabs/bastion/pkg/types"
)

const (
	// DefaultNamespace is the containerd namespace bastion's containers run in.
	DefaultNamespace = "bastion"

	// DefaultSocketPath is the default containerd socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"
)

// ContainerRunner executes one analysis task as a single run-to-completion
// containerd task: stage the target file (and any tool binary overlay) into
// a scratch directory bound into the container at /sb, run the tool's
// configured command or entrypoint, collect the exit code and combined
// logs, and - if the tool declares an output path - read back whatever it
// wrote there. Grounded on original_source/sb/docker.py's execute(),
// __docker_volume() and __docker_args(); the single run/wait/collect/cleanup
// pass replaces the teacher's persistent-service container lifecycle
// (create/start/stop/delete as independent calls), since bastion has no
// long-running containers to schedule back onto a cluster - every
// container here runs exactly one tool invocation to completion.
type ContainerRunner struct {
	client    *containerd.Client
	namespace string
}

// NewContainerRunner connects to the containerd socket. socketPath defaults
// to DefaultSocketPath if empty.
func NewContainerRunner(socketPath string) (*ContainerRunner, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}
	return &ContainerRunner{client: client, namespace: DefaultNamespace}, nil
}

// Close closes the containerd client connection.
func (r *ContainerRunner) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// RunRequest carries everything one task execution needs.
type RunRequest struct {
	ContainerID string
	Tool        *types.Tool
	AbsFn       string
	Mode        types.Mode
	ToolArgs    string
	Timeout     time.Duration
	Main        bool
	SolcPath    string
	CPUQuota    int64  // settings-level override, 0 = use tool's
	MemLimit    string // settings-level override, "" = use tool's
}

// RunResult is what execute() returns in the original: exit code, combined
// logs, and the raw output archive bytes (nil if the tool declares no
// output path or nothing was written there).
type RunResult struct {
	ExitCode *int
	Logs     string
	Output   []byte
}

// Run stages inputs, runs the tool's container to completion or timeout,
// and collects its result. The staging directory is always removed before
// return.
func (r *ContainerRunner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	sbdir, err := stageInputs(req)
	if err != nil {
		return nil, fmt.Errorf("staging task inputs: %w", err)
	}
	defer os.RemoveAll(sbdir)

	ctx = namespaces.WithNamespace(ctx, r.namespace)

	command, entrypoint, err := renderExec(req)
	if err != nil {
		return nil, err
	}

	image, err := r.client.GetImage(ctx, req.Tool.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to get image %s: %w", req.Tool.Image, err)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithMounts([]specs.Mount{sbMount(sbdir)}),
	}
	opts = append(opts, resourceOpts(req)...)
	if args := processArgs(command, entrypoint); len(args) > 0 {
		opts = append(opts, oci.WithProcessArgs(args...))
	}

	id := req.ContainerID
	if id == "" {
		id = fmt.Sprintf("bastion-%s-%d", req.Tool.ID, time.Now().UnixNano())
	}

	c, err := r.client.NewContainer(
		ctx,
		id,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(id+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	defer c.Delete(ctx, containerd.WithSnapshotCleanup)

	var logBuf bytes.Buffer
	task, err := c.NewTask(ctx, cio.NewCreator(cio.WithStreams(nil, &logBuf, &logBuf)))
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	defer task.Delete(ctx)

	statusC, err := task.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for task: %w", err)
	}

	if err := task.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start task: %w", err)
	}

	exitCode, err := waitForExit(ctx, task, statusC, req.Timeout)
	if err != nil {
		return nil, err
	}

	result := &RunResult{ExitCode: exitCode, Logs: logBuf.String()}

	if req.Tool.Output != "" {
		output, err := readOutput(sbdir, req.Tool.Output)
		if err != nil {
			return nil, fmt.Errorf("collecting output archive: %w", err)
		}
		result.Output = output
	}

	return result, nil
}

func sbMount(sbdir string) specs.Mount {
	return specs.Mount{
		Source:      sbdir,
		Destination: "/sb",
		Type:        "bind",
		Options:     []string{"rbind", "rw"},
	}
}

// stageInputs builds the /sb staging directory: the target file (sanitized
// hex, stripped of a leading "0x", for bytecode/runtime modes; copied
// as-is for solidity), the tool's binary overlay if it declares one, and
// the resolved solc binary if the task needed one. Ported from
// original_source/sb/docker.py's __docker_volume.
func stageInputs(req RunRequest) (string, error) {
	sbdir, err := os.MkdirTemp("", "bastion-sb-")
	if err != nil {
		return "", err
	}

	if req.Mode == types.ModeBytecode || req.Mode == types.ModeRuntime {
		if err := stageHexFile(sbdir, req.AbsFn); err != nil {
			os.RemoveAll(sbdir)
			return "", err
		}
	} else if err := copyFile(req.AbsFn, filepath.Join(sbdir, filepath.Base(req.AbsFn))); err != nil {
		os.RemoveAll(sbdir)
		return "", err
	}

	binDir := filepath.Join(sbdir, "bin")
	if req.Tool.Bin != "" {
		if err := copyDir(req.Tool.AbsBin, binDir); err != nil {
			os.RemoveAll(sbdir)
			return "", err
		}
	} else if err := os.MkdirAll(binDir, 0o755); err != nil {
		os.RemoveAll(sbdir)
		return "", err
	}

	if req.SolcPath != "" {
		if err := copyFile(req.SolcPath, filepath.Join(binDir, "solc")); err != nil {
			os.RemoveAll(sbdir)
			return "", err
		}
	}

	return sbdir, nil
}

func stageHexFile(sbdir, absfn string) error {
	data, err := os.ReadFile(absfn)
	if err != nil {
		return err
	}
	line := ""
	if lines := strings.Split(string(data), "\n"); len(lines) > 0 {
		line = strings.TrimSpace(lines[0])
	}
	line = strings.TrimPrefix(line, "0x")
	return os.WriteFile(filepath.Join(sbdir, filepath.Base(absfn)), []byte(line), 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if fi.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

// waitForExit blocks on the task's exit channel up to timeout (0 means
// unbounded), force-killing on expiry, mirroring docker.py's
// container.wait(timeout=...) -> SIGTERM/SIGKILL fallback.
func waitForExit(ctx context.Context, task containerd.Task, statusC <-chan containerd.ExitStatus, timeout time.Duration) (*int, error) {
	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case status := <-statusC:
		code := int(status.ExitCode())
		return &code, nil
	case <-timeoutC:
		_ = task.Kill(ctx, syscall.SIGTERM)
		select {
		case status := <-statusC:
			code := int(status.ExitCode())
			return &code, nil
		case <-time.After(10 * time.Second):
			_ = task.Kill(ctx, syscall.SIGKILL)
			status := <-statusC
			code := int(status.ExitCode())
			return &code, nil
		}
	case <-ctx.Done():
		_ = task.Kill(ctx, syscall.SIGKILL)
		return nil, ctx.Err()
	}
}

// renderExec renders the tool's command template, falling back to its
// entrypoint template, matching __docker_args' command-then-entrypoint
// fallback order.
func renderExec(req RunRequest) (command, entrypoint string, err error) {
	filename := "/sb/" + filepath.Base(req.AbsFn)
	vals := config.TemplateValues(filename, int(req.Timeout.Seconds()), "/sb/bin", req.Main, req.ToolArgs)

	command, err = config.RenderCommand(req.Tool, vals)
	if err != nil {
		return "", "", err
	}
	if command != "" {
		if req.ToolArgs != "" {
			command = strings.TrimSpace(command + " " + req.ToolArgs)
		}
		return command, "", nil
	}

	entrypoint, err = config.RenderEntrypoint(req.Tool, vals)
	if err != nil {
		return "", "", err
	}
	return "", entrypoint, nil
}

func processArgs(command, entrypoint string) []string {
	if command != "" {
		return []string{"/bin/sh", "-c", command}
	}
	if entrypoint != "" {
		return strings.Fields(entrypoint)
	}
	return nil
}

func resourceOpts(req RunRequest) []oci.SpecOpts {
	var opts []oci.SpecOpts

	cpuQuota := req.Tool.CPUQuota
	if req.CPUQuota != 0 {
		cpuQuota = req.CPUQuota
	}
	if cpuQuota > 0 {
		opts = append(opts, oci.WithCPUCFS(cpuQuota, 100000))
	}

	memLimit := req.Tool.MemLimit
	if req.MemLimit != "" {
		memLimit = req.MemLimit
	}
	if memLimit != "" {
		if bytes, err := parseMemLimit(memLimit); err == nil {
			opts = append(opts, oci.WithMemoryLimit(uint64(bytes)))
		}
	}

	return opts
}

// parseMemLimit converts a validated "<n><k|m|g>" mem_limit value (see
// pkg/config's toolconfig validation) to bytes.
func parseMemLimit(v string) (int64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	suffix := strings.ToLower(v[len(v)-1:])
	n, err := strconv.ParseInt(v[:len(v)-1], 10, 64)
	if err != nil {
		return 0, err
	}
	switch suffix {
	case "k":
		return n * 1024, nil
	case "m":
		return n * 1024 * 1024, nil
	case "g":
		return n * 1024 * 1024 * 1024, nil
	default:
		return 0, fmt.Errorf("unrecognized mem_limit suffix %q", suffix)
	}
}

// readOutput reads back whatever the tool wrote at its declared output path.
// /sb is a bind mount of sbdir, so the container's writes there are already
// visible on the host; this stands in for docker.py's
// container.get_archive(), without needing a separate archive API.
func readOutput(sbdir, outputPath string) ([]byte, error) {
	rel := strings.TrimPrefix(outputPath, "/sb")
	rel = strings.TrimPrefix(rel, string(filepath.Separator))
	hostPath := filepath.Join(sbdir, rel)

	info, err := os.Stat(hostPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	defer tw.Close()

	if !info.IsDir() {
		return tarFile(tw, hostPath, filepath.Base(hostPath), &buf)
	}

	base := filepath.Dir(hostPath)
	err = filepath.Walk(hostPath, func(path string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return err
		}
		name, relErr := filepath.Rel(base, path)
		if relErr != nil {
			return relErr
		}
		return tarAppend(tw, path, name, fi)
	})
	if err != nil {
		return nil, err
	}
	tw.Close()
	return buf.Bytes(), nil
}

func tarFile(tw *tar.Writer, path, name string, buf *bytes.Buffer) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if err := tarAppend(tw, path, name, info); err != nil {
		return nil, err
	}
	tw.Close()
	return buf.Bytes(), nil
}

func tarAppend(tw *tar.Writer, path, name string, info os.FileInfo) error {
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}
