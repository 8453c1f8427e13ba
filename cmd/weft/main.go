// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Mode flags, mutually exclusive.
	delegateTask    string
	quantumTask     string
	multiTask       string
	converseMsgs    []string
	converseFile    string
	multiStepFile   string
	multiStepInline string
	agentGoal       string
	requirementsDoc string
	healthReport    bool

	// Mode tuning.
	quantumAngles  string
	roles          string
	instances      int
	pipeline       bool
	autoExecute    bool
	templateFile   string
	contextText    string
	feedbackText   string
	maxRetries     int
	noValidate     bool
	projectContext string
	negotiate      bool

	// Session management.
	sessionID       string
	sessionList     bool
	sessionClose    string
	sessionCloseAll bool
	sessionDigest   string
	transferFrom    string

	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "weft [query]",
	Short: "weft - delegation and session orchestration for an upstream LLM backend",
	Long: `weft drives a conversational LLM backend through persistent named
sessions: single-shot queries, validated delegations, parallel quantum
splits, multi-instance pipelines, multi-step plans and a goal-directed
agent loop. Credentials decide the transport: a browser session (web)
or a direct API key.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	f := rootCmd.Flags()

	f.StringVar(&delegateTask, "delegate", "", "delegate a task with validation and review")
	f.StringVar(&quantumTask, "quantum", "", "run a task from two parallel angles and merge")
	f.StringVar(&multiTask, "multi", "", "fan a task out to N role instances")
	f.StringArrayVar(&converseMsgs, "converse", nil, "conversation message (repeatable, sent in order)")
	f.StringVar(&converseFile, "converse-file", "", "file with one conversation message per line")
	f.StringVar(&multiStepFile, "multi-step", "", "multi-step plan JSON file")
	f.StringVar(&multiStepInline, "multi-step-inline", "", "multi-step plan JSON inline")
	f.StringVar(&agentGoal, "agent", "", "run the goal-directed agent loop")
	f.StringVar(&requirementsDoc, "requirements", "", "requirements document to turn into a plan")
	f.BoolVar(&healthReport, "health-report", false, "print transport health and limiter metrics")

	f.StringVar(&quantumAngles, "quantum-angles", "", "comma-separated pair of working angles")
	f.StringVar(&roles, "roles", "generator,reviewer", "comma-separated role list for --multi")
	f.IntVar(&instances, "instances", 0, "instance count for --multi (defaults to the role count)")
	f.BoolVar(&pipeline, "pipeline", false, "run --multi roles as a sequential pipeline")
	f.BoolVar(&autoExecute, "auto-execute", false, "execute the plan derived from --requirements")

	f.StringVar(&templateFile, "template", "", "TODO_*-marker template file")
	f.StringVar(&contextText, "context", "", "extra context appended to the task")
	f.StringVar(&feedbackText, "feedback", "", "corrective feedback sent into the --session session")
	f.IntVar(&maxRetries, "max-retries", 1, "validation review rounds")
	f.BoolVar(&noValidate, "no-validate", false, "skip response validation")
	f.StringVar(&projectContext, "project-context", "", "project briefing file injected once per session")
	f.BoolVar(&negotiate, "negotiate-skills", false, "let the backend pick skills")

	f.StringVar(&sessionID, "session", "", "session identifier (default: \"default\")")
	f.BoolVar(&sessionList, "session-list", false, "list stored sessions")
	f.StringVar(&sessionClose, "session-close", "", "close the named session")
	f.BoolVar(&sessionCloseAll, "session-close-all", false, "close every active session")
	f.StringVar(&sessionDigest, "session-digest", "", "print the named session's digest")
	f.StringVar(&transferFrom, "transfer-from", "", "inject knowledge from a prior session")

	f.BoolVar(&jsonOutput, "json", false, "emit a structured JSON result")

	rootCmd.MarkFlagsMutuallyExclusive(
		"delegate", "quantum", "multi", "converse", "converse-file",
		"multi-step", "multi-step-inline", "agent", "requirements",
		"health-report", "session-list", "session-close",
		"session-close-all", "session-digest",
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
