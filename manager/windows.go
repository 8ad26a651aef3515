//go:build windows

package manager

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/dreamsxin/memrecycle/types"
)

const wmClose = 0x0010

var (
	user32                       = windows.NewLazySystemDLL("user32.dll")
	procEnumWindows              = user32.NewProc("EnumWindows")
	procGetWindowThreadProcessId = user32.NewProc("GetWindowThreadProcessId")
	procPostMessageW             = user32.NewProc("PostMessageW")

	errNoWindow = errors.New("process has no top-level window")

	// 回调只能创建有限个，所以全局共用一个
	closeMu      sync.Mutex
	closeTarget  uint32
	closePosted  int
	enumCallback = windows.NewCallback(func(hwnd uintptr, _ uintptr) uintptr {
		var pid uint32
		procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
		if pid == closeTarget {
			if ok, _, _ := procPostMessageW.Call(hwnd, wmClose, 0, 0); ok != 0 {
				closePosted++
			}
		}
		return 1 // continue enumeration
	})
)

// createCommand creates a Windows-specific command
func createCommand(spec types.LaunchSpec) *exec.Cmd {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}
	return cmd
}

// requestClose posts WM_CLOSE to every top-level window of the process, like clicking its close button
func requestClose(_ context.Context, h *types.ProcessHandle) error {
	if err := procEnumWindows.Find(); err != nil {
		return fmt.Errorf("load EnumWindows: %w", err)
	}

	closeMu.Lock()
	defer closeMu.Unlock()

	closeTarget = uint32(h.PID)
	closePosted = 0
	procEnumWindows.Call(enumCallback, 0)

	if closePosted == 0 {
		return fmt.Errorf("pid %d: %w", h.PID, errNoWindow)
	}
	return nil
}
