package systemprofile

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const probeTimeout = 1 * time.Second

var packageManagerProbeOrder = []PackageManagerKind{
	PMApt, PMDnf, PMYum, PMApk, PMPacman, PMZypper, PMBrew, PMChoco, PMWinget,
}

var osReleaseFamilies = map[string]DistroFamily{
	"debian": FamilyDebian, "ubuntu": FamilyDebian, "raspbian": FamilyDebian, "linuxmint": FamilyDebian,
	"rhel": FamilyRHEL, "centos": FamilyRHEL, "fedora": FamilyRHEL, "rocky": FamilyRHEL, "almalinux": FamilyRHEL, "amzn": FamilyRHEL,
	"alpine": FamilyAlpine,
	"arch":   FamilyArch, "archlinux": FamilyArch, "manjaro": FamilyArch,
	"opensuse": FamilySUSE, "opensuse-leap": FamilySUSE, "opensuse-tumbleweed": FamilySUSE, "sles": FamilySUSE,
}

// Detector performs bounded-work host detection. It is stateless; callers
// typically wrap it with a 5s-TTL cache (see CachedProfiler).
type Detector struct {
	// runCommand is overridable in tests to avoid depending on the real host.
	runCommand func(ctx context.Context, name string, args ...string) (string, error)
	lookPath   func(file string) (string, error)
}

// NewDetector builds a Detector bound to the real OS and subprocess layer.
func NewDetector() *Detector {
	return &Detector{
		runCommand: runCommandOutput,
		lookPath:   exec.LookPath,
	}
}

// Detect builds a SystemProfile. It never returns an error: any probe
// failure downgrades the corresponding field to its zero/"unknown" value.
func (d *Detector) Detect(ctx context.Context) SystemProfile {
	profile := SystemProfile{
		System:     normalizedSystem(),
		Kernel:     kernelVersion(),
		Machine:    runtime.GOARCH,
		Arch:       normalizeArch(runtime.GOARCH),
		DetectedAt: time.Now(),
	}

	profile.Distro = d.detectDistro(ctx, profile.System)
	profile.Container = d.detectContainer()
	profile.Capabilities = d.detectCapabilities(ctx)
	profile.PackageManager = d.detectPackageManager(ctx, profile.Capabilities.HasSystemd)
	profile.Libraries = d.detectLibraries(ctx, profile.System)

	return profile
}

func normalizedSystem() string {
	switch runtime.GOOS {
	case "linux":
		return "Linux"
	case "darwin":
		return "Darwin"
	case "windows":
		return "Windows"
	default:
		return runtime.GOOS
	}
}

func kernelVersion() string {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return "unknown"
	}
	fields := strings.Fields(string(data))
	if len(fields) >= 3 {
		return fields[2]
	}
	return "unknown"
}

// normalizeArch maps Go's GOARCH (and any raw uname -m output) into the
// two canonical buckets recipes key method tables by, passing anything
// else through lowercased.
func normalizeArch(raw string) string {
	switch strings.ToLower(raw) {
	case "x86_64", "amd64":
		return "amd64"
	case "aarch64", "arm64":
		return "arm64"
	default:
		return strings.ToLower(raw)
	}
}

func (d *Detector) detectDistro(ctx context.Context, system string) Distro {
	switch system {
	case "Darwin":
		return Distro{ID: "macos", Family: FamilyMacOS, Version: d.macOSVersion(ctx)}
	case "Windows":
		return Distro{ID: "windows", Family: FamilyWindows}
	case "Linux":
		return d.parseOSRelease()
	default:
		return Distro{Family: FamilyUnknown}
	}
}

func (d *Detector) macOSVersion(ctx context.Context) string {
	out, err := d.runCommand(ctx, "sw_vers", "-productVersion")
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(out)
}

func (d *Detector) parseOSRelease() Distro {
	f, err := os.Open("/etc/os-release")
	if err != nil {
		return Distro{Family: FamilyUnknown}
	}
	defer f.Close()

	var id, versionID string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"`)
		switch key {
		case "ID":
			id = value
		case "VERSION_ID":
			versionID = value
		}
	}

	family, ok := osReleaseFamilies[strings.ToLower(id)]
	if !ok {
		family = FamilyUnknown
	}

	return Distro{
		ID:           id,
		Family:       family,
		Version:      versionID,
		VersionTuple: parseVersionTuple(versionID),
	}
}

func parseVersionTuple(version string) [2]int {
	parts := strings.SplitN(version, ".", 3)
	var tuple [2]int
	if len(parts) > 0 {
		tuple[0], _ = strconv.Atoi(parts[0])
	}
	if len(parts) > 1 {
		tuple[1], _ = strconv.Atoi(parts[1])
	}
	return tuple
}

func (d *Detector) detectContainer() Container {
	c := Container{}

	if _, err := os.Stat("/.dockerenv"); err == nil {
		c.InContainer = true
		c.Runtime = "docker"
	}

	if data, err := os.ReadFile("/proc/1/cgroup"); err == nil {
		content := string(data)
		switch {
		case strings.Contains(content, "docker"):
			c.InContainer = true
			c.Runtime = "docker"
		case strings.Contains(content, "kubepods"):
			c.InContainer = true
			c.Runtime = "kubernetes"
		case strings.Contains(content, "containerd"):
			c.InContainer = true
			c.Runtime = "containerd"
		}
	}

	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		c.InK8s = true
		c.InContainer = true
	}

	c.Ephemeral = c.InContainer

	return c
}

func (d *Detector) detectCapabilities(ctx context.Context) Capabilities {
	caps := Capabilities{IsRoot: os.Geteuid() == 0}

	if _, err := d.lookPath("systemctl"); err == nil {
		out, err := d.runCommand(ctx, "systemctl", "is-system-running")
		// is-system-running exits non-zero for "degraded"/"starting" states
		// that still count as systemd being present; only "offline" (the
		// binary not reaching a systemd at all) disqualifies it.
		if err == nil || !strings.Contains(out, "offline") {
			caps.HasSystemd = strings.TrimSpace(out) != ""
		}
	}

	if _, err := d.lookPath("sudo"); err == nil {
		caps.HasSudo = true
		if _, err := d.runCommand(ctx, "sudo", "-n", "true"); err == nil {
			caps.PasswordlessSudo = true
		}
	}

	return caps
}

func (d *Detector) detectPackageManager(ctx context.Context, hasSystemd bool) PackageManager {
	pm := PackageManager{Primary: PMNone, Available: make(map[PackageManagerKind]bool)}

	binaryByKind := map[PackageManagerKind]string{
		PMApt: "apt-get", PMDnf: "dnf", PMYum: "yum", PMApk: "apk",
		PMPacman: "pacman", PMZypper: "zypper", PMBrew: "brew",
		PMChoco: "choco", PMWinget: "winget",
	}

	for _, kind := range packageManagerProbeOrder {
		if _, err := d.lookPath(binaryByKind[kind]); err == nil {
			pm.Available[kind] = true
			if pm.Primary == PMNone {
				pm.Primary = kind
			}
		}
	}

	if _, err := d.lookPath("snap"); err == nil && hasSystemd {
		pm.SnapAvailable = true
	}

	return pm
}

func (d *Detector) detectLibraries(ctx context.Context, system string) Libraries {
	libs := Libraries{LibcType: LibcUnknown}

	if out, err := d.runCommand(ctx, "openssl", "version"); err == nil {
		fields := strings.Fields(out)
		if len(fields) >= 2 {
			libs.OpenSSLVersion = fields[1]
		}
	}

	if system != "Linux" {
		return libs
	}

	if out, err := d.runCommand(ctx, "ldd", "--version"); err == nil {
		lower := strings.ToLower(out)
		switch {
		case strings.Contains(lower, "musl"):
			libs.LibcType = LibcMusl
		case strings.Contains(lower, "gnu") || strings.Contains(lower, "glibc"):
			libs.LibcType = LibcGlibc
			libs.GlibcVersion = firstVersionToken(out)
		}
	} else if _, statErr := os.Stat("/lib/ld-musl-x86_64.so.1"); statErr == nil {
		libs.LibcType = LibcMusl
	}

	return libs
}

func firstVersionToken(out string) string {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		for _, f := range fields {
			if len(f) > 0 && (f[0] >= '0' && f[0] <= '9') {
				return f
			}
		}
	}
	return ""
}

func runCommandOutput(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}
