// Package ui provides terminal UI components for the fwprobe CLI.
//
// This package uses Bubble Tea and Lipgloss to render polished terminal output
// for investigation commands. Unlike the interactive traffic watcher, these
// components follow a "run once and exit" pattern - they render output
// compellingly but don't require user interaction.
//
// # Architecture
//
// The UI package provides four main component types:
//
//   - Header: Command banner showing operation name and parameters
//   - Progress: Progress bar with step list showing real-time status
//   - Result: Success/failure boxes with styled information
//   - ToolOutput: Raw external tool output box for verbose mode
//
// These components are orchestrated by the StepRunner, which manages the
// header → progress → result flow for multi-step command execution.
//
// # Usage Pattern
//
// Multi-step commands use this package by:
//
//  1. Creating a StepRunner with command metadata
//  2. Calling Run() with their operation function
//  3. The operation reports progress via a step callback
//  4. StepRunner handles all UI rendering automatically
//
// Example:
//
//	runner := ui.NewStepRunner(ui.StepRunnerConfig{
//	    Title:      "Firmware Investigation",
//	    Command:    "fwprobe e2e",
//	    Params:     map[string]string{"Vendor": "sena"},
//	    TotalSteps: 5,
//	    Verbose:    verbose,
//	})
//
//	err := runner.Run(ctx, func(onStep ui.StepCallback) error {
//	    onStep(1, "Downloading updaters", ui.StepRunning, "")
//	    // ... do work ...
//	    onStep(1, "Downloading updaters", ui.StepComplete, "")
//	    return nil
//	})
//
// # Logging Integration
//
// This package expects logging to be controlled via the FWPROBE_LOG_LEVEL
// environment variable. When unset or empty, zap logging is silent, allowing
// the curated UI output to be displayed cleanly. Set FWPROBE_LOG_LEVEL to
// "debug", "info", "warn", or "error" to enable logging output.
//
// # Verbose Mode
//
// When --verbose is passed to investigation commands, the ToolOutput
// component displays raw output from the external tools (strings, wine,
// VBoxManage, mitmdump) in a styled box after the result. This is useful for
// debugging and seeing exactly what each tool was asked to do.
package ui
