//go:build mage

package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

var (
	Go = "go"
)

// Build builds the library and the wallet CLI into bin/.
func Build() error {
	fmt.Println("Building...")
	if err := sh.Run(Go, "build", "./..."); err != nil {
		return err
	}
	return sh.Run(Go, "build", "-o", filepath.Join("bin", "wallet"), "./cmd/wallet")
}

// Clean deletes any build artifacts.
func Clean() {
	fmt.Println("Cleaning...")
	os.RemoveAll("bin")
	os.Remove("coverage.out")
}

// Test runs unit tests without coverage.
// The mage `-v` option will trigger a verbose output of the test
func Test() error {
	return runTests()
}

// CITest runs unit tests with coverage as a part of CI.
// The mage `-v` option will trigger a verbose output of the test
func CITest() error {
	return runTests("-covermode=atomic", "-coverprofile=coverage.out")
}

// Generate regenerates the capability mocks.
func Generate() error {
	if err := installIfNotPresent("mockgen", "go.uber.org/mock/mockgen@v0.2.0"); err != nil {
		return err
	}
	return sh.Run(Go, "generate", "./pkg/api/...")
}

func runTests(extraTestArgs ...string) error {
	args := []string{"test"}
	if mg.Verbose() {
		args = append(args, "-v")
	}
	args = append(args, "-race")
	args = append(args, extraTestArgs...)
	args = append(args, "./...")
	testEnv := map[string]string{
		"CGO_ENABLED": "1",
		"GO111MODULE": "on",
	}
	writer := ColorizeTestStdout()
	fmt.Printf("%+v\n", args)
	_, err := sh.Exec(testEnv, writer, os.Stderr, Go, args...)
	return err
}

func ColorizeTestOutput(w io.Writer) io.Writer {
	writer := NewRegexpWriter(w, `PASS.*`, "\033[32m$0\033[0m")
	return NewRegexpWriter(writer, `FAIL.*`, "\033[31m$0\033[0m")
}

func ColorizeTestStdout() io.Writer {
	if term.IsTerminal(syscall.Stdout) {
		return ColorizeTestOutput(os.Stdout)
	}
	return os.Stdout
}

type regexpWriter struct {
	inner io.Writer
	re    *regexp.Regexp
	repl  []byte
}

func NewRegexpWriter(inner io.Writer, re string, repl string) io.Writer {
	return &regexpWriter{inner, regexp.MustCompile(re), []byte(repl)}
}

func (w *regexpWriter) Write(p []byte) (int, error) {
	r := w.re.ReplaceAll(p, w.repl)
	n, err := w.inner.Write(r)
	if n > len(r) {
		n = len(r)
	}
	return n, err
}

// installIfNotPresent installs a go based tool if it is not already on PATH or in GOPATH/bin.
func installIfNotPresent(execName, goPackage string) error {
	if findOnPathOrGoPath(execName) != "" {
		return nil
	}
	usr, err := user.Current()
	if err != nil {
		logrus.Fatal(err)
		return err
	}
	fmt.Printf("Attempting to install %s\n", execName)
	cmd := exec.Command(Go, "install", goPackage)
	cmd.Dir = usr.HomeDir
	if err := cmd.Start(); err != nil {
		logrus.Fatal(err)
		return err
	}
	return cmd.Wait()
}

func findOnPathOrGoPath(execName string) string {
	if p := findOnPath(execName); p != "" {
		return p
	}
	p := filepath.Join(goPath(), "bin", execName)
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}

func findOnPath(execName string) string {
	for _, pathDirectory := range strings.Split(os.Getenv("PATH"), string(os.PathListSeparator)) {
		possible := filepath.Join(pathDirectory, execName)
		stat, err := os.Stat(possible)
		if err == nil && (stat.Mode()&0111) != 0 {
			return possible
		}
	}
	return ""
}

func goPath() string {
	goPath, goPathSet := os.LookupEnv("GOPATH")
	if goPathSet {
		return goPath
	}
	usr, err := user.Current()
	if err != nil {
		logrus.Fatal(err)
		return ""
	}
	return filepath.Join(usr.HomeDir, Go)
}

// CBT runs clean; build; test.
func CBT() error {
	Clean()
	if err := Build(); err != nil {
		return err
	}
	return Test()
}
