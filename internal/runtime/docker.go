package runtime

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"
)

// Docker implements Client against the Docker Engine API.
type Docker struct {
	cli    *client.Client
	logger *zap.Logger
}

// NewDocker creates a Docker runtime client from the environment
// (DOCKER_HOST et al), negotiating the API version with the daemon.
func NewDocker(logger *zap.Logger) (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Docker{cli: cli, logger: logger}, nil
}

// Close releases the underlying API client.
func (d *Docker) Close() error {
	return d.cli.Close()
}

func (d *Docker) Ping(ctx context.Context) error {
	_, err := d.cli.Ping(ctx)
	return err
}

func (d *Docker) Create(ctx context.Context, spec CreateSpec) (string, error) {
	if _, _, err := d.cli.ImageInspectWithRaw(ctx, spec.Image); err != nil {
		d.logger.Info("pulling image", zap.String("image", spec.Image))
		rc, pullErr := d.cli.ImagePull(ctx, spec.Image, image.PullOptions{})
		if pullErr != nil {
			return "", fmt.Errorf("pulling image %s: %w", spec.Image, pullErr)
		}
		io.Copy(io.Discard, rc)
		rc.Close()
	}

	resp, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        spec.Image,
			Cmd:          []string{"/bin/bash"},
			Tty:          true,
			OpenStdin:    true,
			AttachStdin:  true,
			AttachStdout: true,
			AttachStderr: true,
			WorkingDir:   spec.Workdir,
			Env:          spec.Env,
			Labels:       spec.Labels,
		},
		&container.HostConfig{
			NetworkMode: container.NetworkMode(spec.NetworkMode),
			Resources: container.Resources{
				Memory:     spec.MemoryBytes,
				MemorySwap: spec.MemoryBytes,
				CPUShares:  spec.CPUShares,
			},
		},
		nil, nil, spec.Name,
	)
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		d.cli.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("starting container: %w", err)
	}

	return resp.ID, nil
}

func (d *Docker) Alive(ctx context.Context, id string) (bool, error) {
	insp, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return insp.State != nil && insp.State.Running, nil
}

func (d *Docker) Stop(ctx context.Context, id string, grace time.Duration) error {
	secs := int(grace.Seconds())
	return d.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &secs})
}

func (d *Docker) Remove(ctx context.Context, id string) error {
	err := d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	if err != nil && client.IsErrNotFound(err) {
		return nil
	}
	return err
}

// Logs reads the container's full output history. Sandbox containers run
// with a TTY, so the stream arrives unmultiplexed and is returned as-is.
func (d *Docker) Logs(ctx context.Context, id string) ([]byte, error) {
	rc, err := d.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (d *Docker) WriteFile(ctx context.Context, id, filePath string, data []byte) error {
	dir := path.Dir(filePath)
	base := path.Base(filePath)
	staged := "." + base + ".partial"

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{
		Name:    staged,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}); err != nil {
		return err
	}
	if _, err := tw.Write(data); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}

	if err := d.cli.CopyToContainer(ctx, id, dir, &buf, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("copying source into container: %w", err)
	}

	mv := fmt.Sprintf("mv -f %s %s", shellQuote(path.Join(dir, staged)), shellQuote(filePath))
	res, err := d.Exec(ctx, id, []string{"/bin/sh", "-c", mv})
	if err != nil {
		return fmt.Errorf("renaming staged file: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("renaming staged file: %s", res.Stderr)
	}
	return nil
}

func (d *Docker) Exec(ctx context.Context, id string, cmd []string) (ExecResult, error) {
	ex, err := d.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, err
	}

	hj, err := d.cli.ContainerExecAttach(ctx, ex.ID, container.ExecStartOptions{})
	if err != nil {
		return ExecResult{}, err
	}
	defer hj.Close()

	var stdout, stderr bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, cpErr := stdcopy.StdCopy(&stdout, &stderr, hj.Reader)
		done <- cpErr
	}()

	select {
	case <-ctx.Done():
		// Unblock the copy goroutine; the exec process itself is the
		// caller's responsibility to reap via Kill.
		hj.Close()
		<-done
		return ExecResult{}, ctx.Err()
	case cpErr := <-done:
		if cpErr != nil {
			return ExecResult{}, cpErr
		}
	}

	insp, err := d.cli.ContainerExecInspect(context.WithoutCancel(ctx), ex.ID)
	if err != nil {
		return ExecResult{}, err
	}

	return ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: insp.ExitCode,
	}, nil
}

func (d *Docker) Kill(ctx context.Context, id, pattern string) error {
	kctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := d.Exec(kctx, id, []string{"/bin/sh", "-c", "pkill -KILL -f " + shellQuote(pattern)})
	if err != nil {
		return err
	}
	// pkill exits 1 when nothing matched; that is not a failure here.
	if res.ExitCode > 1 {
		return fmt.Errorf("pkill exited %d: %s", res.ExitCode, res.Stderr)
	}
	return nil
}

// IsUnavailable reports whether err means the runtime daemon could not be
// reached at all.
func IsUnavailable(err error) bool {
	return client.IsErrConnectionFailed(err)
}

func shellQuote(s string) string {
	var buf bytes.Buffer
	buf.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			buf.WriteString(`'\''`)
		} else {
			buf.WriteByte(s[i])
		}
	}
	buf.WriteByte('\'')
	return buf.String()
}
