package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/stackform/stackform/modules/command"
	"github.com/stackform/stackform/modules/git"
	"github.com/stackform/stackform/pkg/config"
	"github.com/stackform/stackform/pkg/display"
	"github.com/stackform/stackform/pkg/stack"
)

// Exit codes for wrapping scripts.
const (
	exitSuccess  = 0
	exitGeneral  = 1
	exitCommand  = 2
	exitConflict = 3
	exitBug      = 4
)

var (
	app    = kingpin.New("stackform", "Manage a stack of patches on a git branch.")
	debug  = app.Flag("debug", "Enable debug tracing.").Bool()
	branch = app.Flag("branch", "Operate on this branch instead of the current one.").Short('b').String()

	initCmd = app.Command("init", "Initialize the patch stack for a branch.")

	seriesCmd = app.Command("series", "Print the patch series.")

	newCmd     = app.Command("new", "Create a new empty patch on top of the stack.")
	newName    = newCmd.Arg("name", "Patch name.").Required().String()
	newMessage = newCmd.Flag("message", "Patch description.").Short('m').String()

	pushCmd   = app.Command("push", "Push patches onto the stack.")
	pushAll   = pushCmd.Flag("all", "Push every unapplied patch.").Short('a').Bool()
	pushCount = pushCmd.Flag("number", "Push this many patches.").Short('n').Int()
	pushNames = pushCmd.Arg("patches", "Patches to push.").Strings()

	popCmd   = app.Command("pop", "Pop patches off the stack.")
	popAll   = popCmd.Flag("all", "Pop every applied patch.").Short('a').Bool()
	popCount = popCmd.Flag("number", "Pop this many patches.").Short('n').Int()
	popNames = popCmd.Arg("patches", "Patches to pop.").Strings()

	gotoCmd  = app.Command("goto", "Push or pop until the named patch is on top.")
	gotoName = gotoCmd.Arg("patch", "Target patch.").Required().String()

	floatCmd   = app.Command("float", "Move patches to the top of the stack.")
	floatNames = floatCmd.Arg("patches", "Patches to float.").Required().Strings()

	deleteCmd   = app.Command("delete", "Delete patches.")
	deleteNames = deleteCmd.Arg("patches", "Patches to delete.").Required().Strings()

	hideCmd  = app.Command("hide", "Hide a patch from the series listing.")
	hideName = hideCmd.Arg("patch", "Patch to hide.").Required().String()

	unhideCmd  = app.Command("unhide", "Bring a hidden patch back.")
	unhideName = unhideCmd.Arg("patch", "Patch to unhide.").Required().String()

	repairCmd = app.Command("repair", "Reconcile the stack after the branch moved behind our back.")
)

func main() {
	os.Exit(run())
}

func run() int {
	defer command.RunExitHooks()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		command.RunExitHooks()
		os.Exit(exitGeneral)
	}()

	cmdline, err := app.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "stackform: %v\n", err)
		return exitCommand
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "stackform: %v\n", err)
		return exitGeneral
	}
	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logrus.SetLevel(level)
	}
	out := display.Default().WithColor(cfg.ColorEnabled(os.Stderr.Fd()))

	ctx := context.Background()
	repo, err := git.Open(ctx)
	if err != nil {
		out.Error("%v", err)
		return exitGeneral
	}

	branchName := *branch
	if len(branchName) == 0 {
		if branchName, err = repo.CurrentBranchName(ctx); err != nil {
			out.Error("%v", err)
			return exitGeneral
		}
	}

	status, err := dispatch(ctx, cmdline, repo, branchName, out)
	if err != nil {
		out.Error("%v", err)
		switch {
		case stack.IsTransactionError(err):
			return exitCommand
		case git.IsErrNotExist(err):
			return exitCommand
		default:
			return exitGeneral
		}
	}
	if status == stack.StatusConflict {
		return exitConflict
	}
	return exitSuccess
}

func dispatch(ctx context.Context, cmdline string, repo *git.Repository, branchName string, out *display.Console) (stack.Status, error) {
	if cmdline == initCmd.FullCommand() {
		_, err := stack.Initialize(ctx, repo, branchName)
		return stack.StatusOK, err
	}
	s, err := stack.Open(ctx, repo, branchName)
	if err != nil {
		return stack.StatusOK, err
	}
	switch cmdline {
	case seriesCmd.FullCommand():
		return stack.StatusOK, series(ctx, s, out)
	case newCmd.FullCommand():
		return newPatch(ctx, s, out, *newName, *newMessage)
	case pushCmd.FullCommand():
		return push(ctx, s, out, *pushNames, *pushCount, *pushAll)
	case popCmd.FullCommand():
		return pop(ctx, s, out, *popNames, *popCount, *popAll)
	case gotoCmd.FullCommand():
		return goTo(ctx, s, out, *gotoName)
	case floatCmd.FullCommand():
		return float(ctx, s, out, *floatNames)
	case deleteCmd.FullCommand():
		return deletePatches(ctx, s, out, *deleteNames)
	case hideCmd.FullCommand():
		return hide(ctx, s, out, *hideName)
	case unhideCmd.FullCommand():
		return unhide(ctx, s, out, *unhideName)
	case repairCmd.FullCommand():
		return repair(ctx, s, out)
	}
	return stack.StatusOK, fmt.Errorf("unknown command %q", cmdline)
}
