// Package world implements World: the master RootObject that loads
// configuration, spawns Scene subprocesses, and fans configured objects,
// links and attributes out to them (spec §4.9).
package world

import (
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"time"

	"github.com/paperManu/splash/root"
)

// Spawner launches one Scene subprocess named sceneName and returns a stop
// function that terminates it. Kept as an interface (spec §9's "composition
// over inheritance" note applies just as well to os/exec as to C++
// virtuals) so World's spawn-and-wait sequencing is testable without
// actually forking a child.
type Spawner interface {
	Spawn(sceneName, display string, ctx root.Context) (stop func(), err error)
}

// execSpawner is the production Spawner: it re-execs the current binary
// with --child <name>, mirroring original_source/src/core/world.cpp's
// addScene, which posix_spawns the same executable with an equivalent
// argv rather than a separate scene binary.
type execSpawner struct {
	// Executable overrides os.Args[0] for testing; empty means "re-exec
	// the running binary".
	Executable string
	// ForcedDisplay overrides DISPLAY for every spawned Scene, mirroring
	// Context.forcedDisplay in the original.
	ForcedDisplay string
}

// NewExecSpawner returns the production Spawner used by cmd/splash.
func NewExecSpawner(forcedDisplay string) Spawner {
	return &execSpawner{ForcedDisplay: forcedDisplay}
}

var displayPattern = regexp.MustCompile(`^:[0-9]+(\.[0-9]+)?$`)

func (s *execSpawner) Spawn(sceneName, display string, ctx root.Context) (func(), error) {
	exe := s.Executable
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return nil, fmt.Errorf("world: resolve executable: %w", err)
		}
	}

	args := []string{"--child", sceneName}
	if ctx.SocketPrefix != "" {
		args = append(args, "-p", ctx.SocketPrefix)
	}

	forced := s.ForcedDisplay
	if forced == "" {
		forced = display
	}

	cmd := exec.Command(exe, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = sceneEnv(forced)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("world: spawn scene %q: %w", sceneName, err)
	}

	stop := func() {
		if cmd.Process == nil {
			return
		}
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	}
	return stop, nil
}

// sceneEnv computes the child's environment, honoring a forced display the
// way world.cpp's addScene matches sceneDisplay/_context.forcedDisplay
// against a "^:[0-9]+(\.[0-9]+)?$" pattern before overriding DISPLAY.
func sceneEnv(forcedDisplay string) []string {
	env := os.Environ()
	if forcedDisplay == "" || !displayPattern.MatchString(forcedDisplay) {
		return env
	}
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if len(kv) >= 8 && kv[:8] == "DISPLAY=" {
			continue
		}
		out = append(out, kv)
	}
	return append(out, "DISPLAY="+forcedDisplay)
}

// sceneLaunchTimeout is spec §4.9's fixed 5s wait on a spawned Scene's
// sceneLaunched announcement; a var (not a const) so tests can shrink it.
var sceneLaunchTimeout = 5 * time.Second
