/*
Package runtime runs one analysis task to completion in a containerd
container: stage the target contract (and any tool binary overlay) into a
scratch directory bound at /sb, run the tool's configured command or
entrypoint, wait for exit or timeout, and collect logs plus whatever the
tool wrote to its declared output path.

# Lifecycle

Run does, per task:

 1. Stage /sb: copy the contract file (sanitized hex for bytecode/runtime
    mode), the tool's bin overlay if it declares one, and the resolved solc
    binary if the task needed compilation.
 2. Render the tool's command or entrypoint template against FILENAME,
    TIMEOUT, BIN, MAIN, ARGS.
 3. Create a container with the rendered process args, /sb bind-mounted
    read-write, and CPU/memory limits from the tool's config (overridable
    per run).
 4. Start the task, wait up to the task's timeout, escalating SIGTERM then
    SIGKILL on expiry.
 5. Collect combined stdout/stderr and, if the tool declares an output
    path, read it back from the host side of the /sb bind mount.
 6. Delete the task and container (with snapshot cleanup) and remove the
    staging directory.

Namespace: all bastion containers run in the "bastion" containerd
namespace, isolated from other containerd users on the host.

# Usage

	runner, err := runtime.NewContainerRunner("")
	if err != nil {
		log.Fatal(err)
	}
	defer runner.Close()

	result, err := runner.Run(ctx, runtime.RunRequest{
		Tool:     tool,
		AbsFn:    "/contracts/Vuln.sol",
		Mode:     types.ModeSolidity,
		Timeout:  500 * time.Second,
	})

# See Also

  - pkg/executor for the task-level orchestration that calls Run and hands
    its result to pkg/parser
  - pkg/config for tool descriptor loading and template rendering
*/
package runtime
