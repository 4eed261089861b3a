// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"strings"

	"github.com/beevik/cmd"
)

// A command is the data stored with each command in the command tree.
type command struct {
	name    string
	brief   string
	desc    string
	usage   string
	handler func(*Host, selection) error
}

// A group lists the commands of one tree for help display.
type group struct {
	title    string
	commands []*command
}

// A selection is a command chosen from the tree along with its arguments.
type selection struct {
	cmd  *command
	args []string
}

var (
	cmds   *cmd.Tree
	groups = make(map[*cmd.Tree]*group)
)

func newGroup(t *cmd.Tree, title string) *cmd.Tree {
	groups[t] = &group{title: title}
	return t
}

func addCommand(t *cmd.Tree, c *command) {
	g := groups[t]
	g.commands = append(g.commands, c)
	t.AddCommand(cmd.CommandDescriptor{
		Name:        c.name,
		Brief:       c.brief,
		Description: c.desc,
		Usage:       c.usage,
		Data:        c,
	})
}

func addSubtree(t *cmd.Tree, name, brief string) *cmd.Tree {
	g := groups[t]
	g.commands = append(g.commands, &command{name: name, brief: brief})
	title := strings.ToUpper(name[:1]) + name[1:]
	return newGroup(t.AddSubtree(cmd.TreeDescriptor{Name: name, Brief: brief}), title)
}

func init() {
	root := newGroup(cmd.NewTree(cmd.TreeDescriptor{Name: "gopdp11"}), "gopdp11")
	addCommand(root, &command{
		name:    "help",
		desc:    "Display help for a command.",
		usage:   "help [<command>]",
		handler: (*Host).cmdHelp,
	})
	addCommand(root, &command{
		name:  "annotate",
		brief: "Annotate an address",
		desc: "Provide a code annotation at a memory address." +
			" When disassembling code at this address, the annotation will" +
			" be displayed.",
		usage:   "annotate <address> <string>",
		handler: (*Host).cmdAnnotate,
	})

	// Breakpoint commands
	bp := addSubtree(root, "breakpoint", "Breakpoint commands")
	addCommand(bp, &command{
		name:    "list",
		brief:   "List breakpoints",
		desc:    "List all current breakpoints.",
		usage:   "breakpoint list",
		handler: (*Host).cmdBreakpointList,
	})
	addCommand(bp, &command{
		name:  "add",
		brief: "Add a breakpoint",
		desc: "Add a breakpoint at the specified address." +
			" The breakpoint starts enabled.",
		usage:   "breakpoint add <address>",
		handler: (*Host).cmdBreakpointAdd,
	})
	addCommand(bp, &command{
		name:    "remove",
		brief:   "Remove a breakpoint",
		desc:    "Remove a breakpoint at the specified address.",
		usage:   "breakpoint remove <address>",
		handler: (*Host).cmdBreakpointRemove,
	})
	addCommand(bp, &command{
		name:    "enable",
		brief:   "Enable a breakpoint",
		desc:    "Enable a previously added breakpoint.",
		usage:   "breakpoint enable <address>",
		handler: (*Host).cmdBreakpointEnable,
	})
	addCommand(bp, &command{
		name:  "disable",
		brief: "Disable a breakpoint",
		desc: "Disable a previously added breakpoint. This" +
			" prevents the breakpoint from being hit when running the" +
			" processor.",
		usage:   "breakpoint disable <address>",
		handler: (*Host).cmdBreakpointDisable,
	})

	// Data breakpoint commands
	db := addSubtree(root, "databreakpoint", "Data breakpoint commands")
	addCommand(db, &command{
		name:    "list",
		brief:   "List data breakpoints",
		desc:    "List all current data breakpoints.",
		usage:   "databreakpoint list",
		handler: (*Host).cmdDataBreakpointList,
	})
	addCommand(db, &command{
		name:  "add",
		brief: "Add a data breakpoint",
		desc: "Add a new data breakpoint at the specified" +
			" memory address. When the processor stores data at this" +
			" address, the breakpoint will stop it. Optionally, a value" +
			" may be specified, and the processor will stop only when this" +
			" value is stored. The data breakpoint starts enabled.",
		usage:   "databreakpoint add <address> [<value>]",
		handler: (*Host).cmdDataBreakpointAdd,
	})
	addCommand(db, &command{
		name:  "remove",
		brief: "Remove a data breakpoint",
		desc: "Remove a previously added data breakpoint at" +
			" the specified memory address.",
		usage:   "databreakpoint remove <address>",
		handler: (*Host).cmdDataBreakpointRemove,
	})
	addCommand(db, &command{
		name:    "enable",
		brief:   "Enable a data breakpoint",
		desc:    "Enable a previously added data breakpoint.",
		usage:   "databreakpoint enable <address>",
		handler: (*Host).cmdDataBreakpointEnable,
	})
	addCommand(db, &command{
		name:    "disable",
		brief:   "Disable a data breakpoint",
		desc:    "Disable a previously added data breakpoint.",
		usage:   "databreakpoint disable <address>",
		handler: (*Host).cmdDataBreakpointDisable,
	})

	addCommand(root, &command{
		name:  "bus",
		brief: "Display bus state",
		desc: "Display the devices attached to the bus in dispatch order," +
			" the current bus master, the last address transferred, the" +
			" processor priority and any pending interrupt requests.",
		usage:   "bus",
		handler: (*Host).cmdBus,
	})
	addCommand(root, &command{
		name:  "disassemble",
		brief: "Disassemble code",
		desc: "Disassemble machine code starting at the requested" +
			" address. The number of instruction lines to disassemble may be" +
			" specified as an option. If no address is specified, the" +
			" disassembly continues from where the last disassembly left off.",
		usage:   "disassemble [<address>] [<lines>]",
		handler: (*Host).cmdDisassemble,
	})
	addCommand(root, &command{
		name:  "evaluate",
		brief: "Evaluate an expression",
		desc: "Evaluate a mathematical expression. Numbers are octal" +
			" unless followed by a '.', which makes them decimal. Use $ or 0x" +
			" for hexadecimal and % for binary.",
		usage:   "evaluate <expression>",
		handler: (*Host).cmdEvaluate,
	})
	addCommand(root, &command{
		name:  "execute",
		brief: "Execute a script file",
		desc: "Load a script file from disk and execute the" +
			" commands it contains.",
		usage:   "execute <filename>",
		handler: (*Host).cmdExecute,
	})
	addCommand(root, &command{
		name:  "load",
		brief: "Load a binary file",
		desc: "Load the contents of a binary file into the emulated" +
			" system's memory. Files ending in .lda, .ptap or .pt are read as" +
			" absolute loader paper tapes, and a tape's start address becomes" +
			" the new PC. Any other file is loaded as raw little-endian words," +
			" and you must specify the address where they will be loaded.",
		usage:   "load <filename> [<address>]",
		handler: (*Host).cmdLoad,
	})

	// Memory commands
	me := addSubtree(root, "memory", "Memory commands")
	addCommand(me, &command{
		name:  "dump",
		brief: "Dump memory at address",
		desc: "Dump the contents of memory starting from the" +
			" specified address. The number of words to dump may be" +
			" specified as an option. If no address is specified, the" +
			" memory dump continues from where the last dump left off.",
		usage:   "memory dump [<address>] [<words>]",
		handler: (*Host).cmdMemoryDump,
	})
	addCommand(me, &command{
		name:  "set",
		brief: "Set memory at address",
		desc: "Deposit words into memory starting from the specified" +
			" address. The values to deposit should be a series of" +
			" space-separated word values. You may use an expression for each" +
			" value. Memory may be deposited while the processor runs.",
		usage:   "memory set <address> <word> [<word> ...]",
		handler: (*Host).cmdMemorySet,
	})

	addCommand(root, &command{
		name:    "quit",
		brief:   "Quit the program",
		desc:    "Quit the program.",
		usage:   "quit",
		handler: (*Host).cmdQuit,
	})
	addCommand(root, &command{
		name:  "register",
		brief: "View or change register values",
		desc: "When used without arguments, this command displays the current" +
			" contents of the processor registers. When used with arguments, this" +
			" command changes the value of a register or one of the condition" +
			" codes. Allowed register names include R0 through R7, SP, PC and PS." +
			" Allowed condition code names are N, Z, V, C and the trace bit T." +
			" Registers may only be changed while the processor is halted.",
		usage:   "register [<name> <value>]",
		handler: (*Host).cmdRegister,
	})
	addCommand(root, &command{
		name:  "reset",
		brief: "Reset the machine",
		desc: "Clear the processor registers, load the boot address into" +
			" the PC and assert INIT on the bus, resetting every device.",
		usage:   "reset",
		handler: (*Host).cmdReset,
	})
	addCommand(root, &command{
		name:  "run",
		brief: "Run the processor",
		desc: "Run the processor until it halts, a breakpoint is hit or" +
			" the user types Ctrl-C. While the processor runs, keys typed" +
			" at the terminal go to the console teletype. Type Ctrl-E to break." +
			" An optional start address may be given.",
		usage:   "run [<address>]",
		handler: (*Host).cmdRun,
	})
	addCommand(root, &command{
		name:  "set",
		brief: "Set a configuration variable",
		desc: "Set the value of a configuration variable. To see the" +
			" current values of all configuration variables, type set" +
			" without any arguments.",
		usage:   "set [<var> <value>]",
		handler: (*Host).cmdSet,
	})

	// Step commands
	st := addSubtree(root, "step", "Step the debugger")
	addCommand(st, &command{
		name:  "in",
		brief: "Step into next instruction",
		desc: "Step the processor by a single instruction. If the" +
			" instruction is a subroutine call, step into the subroutine." +
			" The number of steps may be specified as an option.",
		usage:   "step in [<count>]",
		handler: (*Host).cmdStepIn,
	})
	addCommand(st, &command{
		name:  "over",
		brief: "Step over next instruction",
		desc: "Step the processor by a single instruction. If the" +
			" instruction is a JSR, run until the subroutine returns." +
			" The number of steps may be specified as an option.",
		usage:   "step over [<count>]",
		handler: (*Host).cmdStepOver,
	})
	addCommand(st, &command{
		name:  "out",
		brief: "Step out of the current subroutine",
		desc: "Step the processor until it executes an RTS, RTI or RTT" +
			" instruction. This has the effect of stepping until the" +
			" currently running subroutine has returned.",
		usage:   "step out",
		handler: (*Host).cmdStepOut,
	})

	addCommand(root, &command{
		name:  "tape",
		brief: "Mount a paper tape",
		desc: "Mount a file in the paper tape reader. The tape is read" +
			" one frame at a time by programs that use the reader.",
		usage:   "tape <filename>",
		handler: (*Host).cmdTape,
	})
	addCommand(root, &command{
		name:  "type",
		brief: "Type text at the console",
		desc: "Queue characters on the console keyboard, followed by a" +
			" carriage return. The program reads them through the keyboard" +
			" registers.",
		usage:   "type <text>",
		handler: (*Host).cmdType,
	})

	// Add command shortcuts.
	root.AddShortcut("b", "breakpoint")
	root.AddShortcut("bp", "breakpoint")
	root.AddShortcut("ba", "breakpoint add")
	root.AddShortcut("br", "breakpoint remove")
	root.AddShortcut("bl", "breakpoint list")
	root.AddShortcut("be", "breakpoint enable")
	root.AddShortcut("bd", "breakpoint disable")
	root.AddShortcut("d", "disassemble")
	root.AddShortcut("db", "databreakpoint")
	root.AddShortcut("dbp", "databreakpoint")
	root.AddShortcut("dbl", "databreakpoint list")
	root.AddShortcut("dba", "databreakpoint add")
	root.AddShortcut("dbr", "databreakpoint remove")
	root.AddShortcut("dbe", "databreakpoint enable")
	root.AddShortcut("dbd", "databreakpoint disable")
	root.AddShortcut("e", "evaluate")
	root.AddShortcut("g", "run")
	root.AddShortcut("m", "memory dump")
	root.AddShortcut("ms", "memory set")
	root.AddShortcut("r", "register")
	root.AddShortcut("s", "step over")
	root.AddShortcut("si", "step in")
	root.AddShortcut("so", "step out")
	root.AddShortcut("?", "help")

	cmds = root
}
