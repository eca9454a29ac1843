package toolbox

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"go.uber.org/zap/zapcore"
)

// DockerConfig configures the DockerRunner
type DockerConfig struct {
	Image            string // image providing the tools (e.g. ghcr.io/osgeo/gdal:ubuntu-small-3.8.5)
	Envs             []string
	RegistryServer   string // "https://europe-west1-docker.pkg.dev" for gcs for example
	RegistryUserName string // _json_key for gcs
	RegistryPassword string // service account for gcs
	VolumesToMount   string // List of volumes to mount (comma separated)
}

// SetFlags configures flag for a docker config
// Returns dockerEnvs as string, comma sep.
//
//	cfg := DockerConfig{}
//	dockerEnvsStr := cfg.SetFlags()
//	flag.Parse()
//	if *dockerEnvsStr != "" {
//		cfg.Envs = strings.Split(*dockerEnvsStr, ",")
//	}
func (cfg *DockerConfig) SetFlags() *string {
	flag.StringVar(&cfg.Image, "docker-image", "ghcr.io/osgeo/gdal:ubuntu-small-3.8.5", "docker image providing gdal tools")
	flag.StringVar(&cfg.RegistryUserName, "docker-registry-username", "_json_key", "username to authentication on private registry")
	flag.StringVar(&cfg.RegistryPassword, "docker-registry-password", "", "password to authentication on private registry")
	flag.StringVar(&cfg.RegistryServer, "docker-registry-server", "", "address of server to authenticate on private registry (e.g. https://europe-west1-docker.pkg.dev)")
	flag.StringVar(&cfg.VolumesToMount, "docker-mount-volumes", "", "list of volumes to mount on the docker (comma separated)")

	return flag.String("docker-envs", "", "docker variable env key white list (comma sep) ")
}

// DockerRunner runs the tools in a container of a docker image
type DockerRunner struct {
	Client         *client.Client
	Image          string
	Envs           []string
	VolumesToMount []string
	AuthConfig     string //encode base64
}

// NewDockerRunner connects to the docker daemon
func NewDockerRunner(ctx context.Context, config DockerConfig) (*DockerRunner, error) {
	if config.Image == "" {
		return nil, fmt.Errorf("NewDockerRunner: missing image")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create new docker client: %w", err)
	}

	var encodedAuthLogin string
	if config.RegistryUserName != "" && config.RegistryPassword != "" && config.RegistryServer != "" {
		log.Logger(ctx).Info("register to container registry...")
		encodedAuthLogin, err = registry.EncodeAuthConfig(registry.AuthConfig{
			Username:      config.RegistryUserName,
			Password:      config.RegistryPassword,
			ServerAddress: config.RegistryServer,
		})
		if err != nil {
			return nil, fmt.Errorf("NewDockerRunner: %w", err)
		}
	}

	d := DockerRunner{
		Client:     cli,
		Image:      config.Image,
		Envs:       config.Envs,
		AuthConfig: encodedAuthLogin,
	}
	if len(config.VolumesToMount) > 0 {
		d.VolumesToMount = strings.Split(config.VolumesToMount, ",")
	}

	if err := d.Ping(ctx, 5*time.Minute); err != nil {
		return nil, fmt.Errorf("NewDockerRunner: %w", err)
	}

	return &d, nil
}

// Ping waits for the docker daemon
func (d *DockerRunner) Ping(ctx context.Context, timeout time.Duration) error {
	var err error
	ctx, cnl := context.WithTimeout(ctx, timeout)
	defer cnl()
	for {
		if _, err = d.Client.Ping(ctx); err == nil {
			return nil
		}
		log.Logger(ctx).Info("Waiting for docker daemon...")
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to found docker daemon: %w", err)
		case <-time.After(5 * time.Second):
		}
	}
}

// Run implements Runner
func (d *DockerRunner) Run(ctx context.Context, workdir, name string, args ...string) error {
	if workdir == "" {
		var err error
		if workdir, err = os.Getwd(); err != nil {
			return fmt.Errorf("DockerRunner.Run: %w", err)
		}
	}
	if err := d.Ping(ctx, time.Minute); err != nil {
		return fmt.Errorf("DockerRunner.Run: %w", err)
	}

	imageInfo, err := d.localImageInfo(ctx, d.Image)
	if err != nil {
		log.Logger(ctx).Info("pulling image " + d.Image)
		if imageInfo, err = d.pullImage(ctx, d.Image); err != nil {
			return fmt.Errorf("DockerRunner.Run: %w", err)
		}
	}

	var availableEnvs []string
	for _, env := range os.Environ() {
		for _, wlEnv := range d.Envs {
			if strings.HasPrefix(env, wlEnv+"=") {
				availableEnvs = append(availableEnvs, env)
			}
		}
	}

	volumeToMount := []mount.Mount{{
		Type:   mount.TypeBind,
		Source: workdir,
		Target: workdir,
	}}
	for _, volume := range d.VolumesToMount {
		volumeToMount = append(volumeToMount, mount.Mount{
			Type:     mount.TypeBind,
			Source:   volume,
			Target:   volume,
			ReadOnly: true,
		})
	}

	containerConfig := &container.Config{
		Image:        imageInfo.ID,
		Cmd:          append([]string{name}, args...),
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   workdir,
		Env:          availableEnvs,
	}
	hostConfig := &container.HostConfig{
		Mounts: volumeToMount,
	}

	createdContainer, err := d.Client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return service.MakeTemporary(fmt.Errorf("failed to create %s container: %w", name, err))
	}
	defer func() {
		// ctx may be cancelled
		ctx := context.Background()
		if err := d.Client.ContainerStop(ctx, createdContainer.ID, container.StopOptions{}); err != nil {
			log.Logger(ctx).Sugar().Warnf("failed to stop container: %s", createdContainer.ID)
		}
		if err := d.Client.ContainerRemove(ctx, createdContainer.ID, container.RemoveOptions{}); err != nil {
			log.Logger(ctx).Sugar().Warnf("failed to remove container: %s", createdContainer.ID)
		}
	}()

	filter := NewFilter(name)
	if err = d.runContainer(ctx, createdContainer.ID, filter); err != nil {
		return fmt.Errorf("run[%s %s]: %w", name, strings.Join(args, " "), WrapError(filter, err))
	}
	return nil
}

func (d *DockerRunner) pullImage(ctx context.Context, ref string) (image.Summary, error) {
	imagePullRc, err := d.Client.ImagePull(ctx, ref, image.PullOptions{
		RegistryAuth: d.AuthConfig,
	})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "timeout") {
			err = service.MakeTemporary(err)
		}
		return image.Summary{}, fmt.Errorf("failed to pull image %s: %w", ref, err)
	}

	defer imagePullRc.Close()
	if _, err := io.Copy(io.Discard, imagePullRc); err != nil {
		log.Logger(ctx).Sugar().Errorf("failed to read image pull information: %v", err)
	}
	return d.localImageInfo(ctx, ref)
}

func (d *DockerRunner) localImageInfo(ctx context.Context, ref string) (image.Summary, error) {
	images, err := d.Client.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", ref)),
	})
	if err != nil {
		return image.Summary{}, service.MakeTemporary(fmt.Errorf("failed to list image %s: %w", ref, err))
	}
	if len(images) < 1 {
		return image.Summary{}, service.MakeTemporary(fmt.Errorf("not found: %s", ref))
	}
	return images[0], nil
}

func (d *DockerRunner) runContainer(ctx context.Context, containerID string, filter log.ToolFilter) error {
	if err := d.Client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return service.MakeTemporary(fmt.Errorf("failed to start container: %w", err))
	}

	containerLogs, err := d.Client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return fmt.Errorf("failed to retrieve logs: %w", err)
	}

	log.ReadLines(ctx, containerLogs, log.Stream{Level: zapcore.DebugLevel, Filter: filter, Strip: stripStreamHeader})
	containerLogs.Close()

	statusCh, errCh := d.Client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case exit := <-statusCh:
		if exit.StatusCode != 0 {
			return fmt.Errorf("exit status %d", exit.StatusCode)
		}
	}
	return nil
}

// stripStreamHeader removes the header of a frame of the multiplexed container logs
func stripStreamHeader(line []byte) []byte {
	if len(line) >= 8 {
		return line[8:]
	}
	return line
}
