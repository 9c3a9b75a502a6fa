package drivers

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner runs an external command and returns its standard output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

const windowsODBCScript = `Get-OdbcDriver | ForEach-Object { '{0}|{1}' -f $_.Name, $_.Attribute['DriverODBCVer'] }`

// probeODBC asks the host driver manager for its registered drivers. A failed probe
// yields no descriptors and a warning.
func probeODBC(ctx context.Context, run CommandRunner, goos string) ([]Descriptor, string) {
	var (
		tool   string
		args   []string
		source string
		parse  func([]byte) []Descriptor
	)

	if goos == "windows" {
		tool, args, source = "powershell", []string{"-NoProfile", "-Command", windowsODBCScript}, "Get-OdbcDriver"
		parse = parseWindowsDrivers
	} else {
		tool, args, source = "odbcinst", []string{"-q", "-d"}, "odbcinst"
		parse = parseOdbcinstDrivers
	}

	out, err := run(ctx, tool, args...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			if goos == "windows" {
				return nil, "powershell not found; ODBC drivers were not listed"
			}
			return nil, "odbcinst not found; install unixODBC to list ODBC drivers"
		}
		return nil, fmt.Sprintf("%s failed: %v", source, err)
	}

	found := parse(out)
	for i := range found {
		found[i].Source = source
	}
	return found, ""
}

// parseOdbcinstDrivers reads `odbcinst -q -d` output, one "[Driver Name]" per line.
func parseOdbcinstDrivers(out []byte) []Descriptor {
	var result []Descriptor
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
			continue
		}
		name := strings.TrimSpace(line[1 : len(line)-1])
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		result = append(result, Descriptor{Name: name, Version: UnknownVersion, Kind: KindODBC})
	}
	return result
}

// parseWindowsDrivers reads "Name|Version" lines. Drivers registered for both 32 and
// 64 bit appear twice and are reported once.
func parseWindowsDrivers(out []byte) []Descriptor {
	var result []Descriptor
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		name, version, _ := strings.Cut(line, "|")
		name, version = strings.TrimSpace(name), strings.TrimSpace(version)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if version == "" {
			version = UnknownVersion
		}
		result = append(result, Descriptor{Name: name, Version: version, Kind: KindODBC})
	}
	return result
}
