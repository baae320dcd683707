package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Mailbox file layout
const (
	// DefaultMailboxFile is the active hand-off document
	DefaultMailboxFile = "task_data.json"

	// BackupMarker separates the active name from the backup epoch
	BackupMarker = ".notified_"

	// AppDirName is the per-user state directory name
	AppDirName = "clouddesk"
)

// MailboxDir returns the default mailbox directory for the current user
func MailboxDir() string {
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, AppDirName, "mailbox")
	}
	return filepath.Join(os.TempDir(), AppDirName, "mailbox")
}

// BackupName returns the backup name for an active mailbox file.
// seq > 0 disambiguates several backups taken within the same second.
func BackupName(active string, epoch int64, seq int) string {
	name := active + BackupMarker + strconv.FormatInt(epoch, 10)
	if seq > 0 {
		name += "." + strconv.Itoa(seq)
	}
	return name
}

// BackupGlob returns the doublestar pattern matching every backup of base
func BackupGlob(base string) string {
	return escapeGlob(base) + BackupMarker + "*"
}

// BackupEpoch extracts the epoch seconds and sequence from a backup file name
func BackupEpoch(name string) (epoch int64, seq int, ok bool) {
	i := strings.LastIndex(name, BackupMarker)
	if i < 0 {
		return 0, 0, false
	}
	rest := name[i+len(BackupMarker):]
	if dot := strings.IndexByte(rest, '.'); dot >= 0 {
		s, err := strconv.Atoi(rest[dot+1:])
		if err != nil {
			return 0, 0, false
		}
		seq = s
		rest = rest[:dot]
	}
	e, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return e, seq, true
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "{", `\{`)
	return r.Replace(s)
}

// CandidateDirs returns the ordered directories searched for a spawn target:
// the working directory, the directory of the running executable, its parent
// (the project root for installed layouts) and any extra roots.
func CandidateDirs(extra ...string) []string {
	var dirs []string
	seen := make(map[string]bool)
	add := func(d string) {
		if d == "" {
			return
		}
		abs, err := filepath.Abs(d)
		if err != nil {
			abs = filepath.Clean(d)
		}
		if seen[abs] {
			return
		}
		seen[abs] = true
		dirs = append(dirs, abs)
	}

	if wd, err := os.Getwd(); err == nil {
		add(wd)
	}
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		add(exeDir)
		add(filepath.Dir(exeDir))
	}
	for _, d := range extra {
		add(d)
	}
	return dirs
}

// FindExecutable looks for name in each dir and returns the first usable
// match together with every path that was tried.
func FindExecutable(name string, dirs []string) (string, []string, error) {
	if name == "" {
		return "", nil, fmt.Errorf("executable name cannot be empty")
	}

	var tried []string
	if filepath.IsAbs(name) {
		tried = append(tried, name)
		if usable(name) {
			return name, tried, nil
		}
		return "", tried, os.ErrNotExist
	}

	for _, dir := range dirs {
		for _, candidate := range variants(filepath.Join(dir, name)) {
			tried = append(tried, candidate)
			if usable(candidate) {
				return candidate, tried, nil
			}
		}
	}
	return "", tried, os.ErrNotExist
}

func variants(path string) []string {
	if runtime.GOOS == "windows" && filepath.Ext(path) == "" {
		return []string{path, path + ".exe"}
	}
	return []string{path}
}

// usable reports whether path is a regular file we can hand to exec.
// Interpreted scripts only need to be readable.
func usable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if runtime.GOOS == "windows" || Interpreter(path) != "" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

// Interpreter returns the interpreter needed to run a script target, or ""
// for native executables
func Interpreter(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		if runtime.GOOS == "windows" {
			return "python"
		}
		return "python3"
	case ".sh":
		return "/bin/sh"
	}
	return ""
}
