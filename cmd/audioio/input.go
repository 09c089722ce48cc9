package main

import (
	"context"
	"os"
	"os/exec"
	"sync"

	"github.com/sirupsen/logrus"
)

var restoreOnce sync.Once

// enableRawInput 让终端逐键读取且不回显
func enableRawInput() {
	if err := exec.Command("stty", "-F", "/dev/tty", "cbreak", "min", "1").Run(); err != nil {
		logrus.Debugf("设置终端cbreak模式失败: %v", err)
	}
	if err := exec.Command("stty", "-F", "/dev/tty", "-echo").Run(); err != nil {
		logrus.Debugf("关闭终端回显失败: %v", err)
	}
}

// restoreTerminal 恢复终端设置，多次调用只执行一次
func restoreTerminal() {
	restoreOnce.Do(func() {
		if err := exec.Command("stty", "-F", "/dev/tty", "echo").Run(); err != nil {
			logrus.Debugf("恢复终端回显失败: %v", err)
		}
		if err := exec.Command("stty", "-F", "/dev/tty", "-cbreak").Run(); err != nil {
			logrus.Debugf("恢复终端规范模式失败: %v", err)
		}
	})
}

// readKeys 把按键送到keys，ctx取消或输入结束时关闭keys
func readKeys(ctx context.Context, keys chan<- byte) {
	defer close(keys)
	for {
		var b [1]byte
		if _, err := os.Stdin.Read(b[:]); err != nil {
			logrus.Debugf("读取输入结束: %v", err)
			return
		}
		select {
		case keys <- b[0]:
		case <-ctx.Done():
			return
		}
	}
}
