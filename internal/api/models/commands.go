package models

import "time"

// CommandData is a stored command together with its live run state.
type CommandData struct {
	ID            int64     `json:"id" example:"7" doc:"Command identifier"`
	Name          string    `json:"name" example:"build" doc:"Display name"`
	Command       string    `json:"command" example:"make all" doc:"Shell command line"`
	Cwd           string    `json:"cwd" example:"/home/user/src" doc:"Working directory"`
	OrderKey      string    `json:"order_key" example:"n" doc:"Fractional order key; commands are listed by it"`
	Status        string    `json:"status" enum:"running,stopping,stopped" example:"stopped" doc:"Live run state"`
	LastRunResult string    `json:"last_run_result" enum:"none,exit,killed,error" example:"exit" doc:"Outcome of the most recent run"`
	LastRunCode   *string   `json:"last_run_code,omitempty" example:"0" doc:"Exit code of the most recent run, if it exited"`
	CreatedAt     time.Time `json:"created_at" doc:"Creation time"`
	UpdatedAt     time.Time `json:"updated_at" doc:"Last modification time"`
}

type CommandResponse struct {
	Body CommandData
}

type CommandListData struct {
	Commands []CommandData `json:"commands" doc:"Commands in display order"`
	Count    int           `json:"count" example:"3" doc:"Number of commands"`
}

type CommandListResponse struct {
	Body CommandListData
}

type CommandIDInput struct {
	ID int64 `path:"id" minimum:"1" example:"7" doc:"Command identifier"`
}

type CreateCommandData struct {
	Name    string `json:"name" minLength:"1" maxLength:"200" example:"build" doc:"Display name"`
	Command string `json:"command" minLength:"1" example:"make all" doc:"Shell command line"`
	Cwd     string `json:"cwd,omitempty" example:"/home/user/src" doc:"Working directory; defaults to the home directory"`
}

type CreateCommandRequest struct {
	Body CreateCommandData
}

type UpdateCommandData struct {
	Name     *string `json:"name,omitempty" minLength:"1" maxLength:"200" doc:"New display name"`
	Command  *string `json:"command,omitempty" minLength:"1" doc:"New shell command line"`
	Cwd      *string `json:"cwd,omitempty" doc:"New working directory"`
	OrderKey *string `json:"order_key,omitempty" pattern:"^[a-z]*[b-z]$" doc:"Explicit order key"`
}

type UpdateCommandRequest struct {
	ID   int64 `path:"id" minimum:"1" example:"7" doc:"Command identifier"`
	Body UpdateCommandData
}

type MoveCommandData struct {
	AfterID  int64 `json:"after_id,omitempty" minimum:"0" example:"3" doc:"Place after this command"`
	BeforeID int64 `json:"before_id,omitempty" minimum:"0" example:"4" doc:"Place before this command"`
}

type MoveCommandRequest struct {
	ID   int64 `path:"id" minimum:"1" example:"7" doc:"Command identifier"`
	Body MoveCommandData
}

// Run status models
type CommandStatusData struct {
	ID     int64  `json:"id" example:"7" doc:"Command identifier"`
	Status string `json:"status" enum:"running,stopping,stopped" example:"running" doc:"Live run state"`
}

type CommandStatusResponse struct {
	Body CommandStatusData
}

// Log models
type LogLinesInput struct {
	ID     int64 `path:"id" minimum:"1" example:"7" doc:"Command identifier"`
	Before int64 `query:"before" minimum:"0" doc:"Return lines with an id lower than this cursor"`
	After  int64 `query:"after" minimum:"0" doc:"Return lines with an id higher than this cursor"`
	Limit  int   `query:"limit" minimum:"0" maximum:"1000" doc:"Maximum number of lines; 0 uses the default"`
}

type LogLineData struct {
	ID        int64   `json:"id" example:"1042" doc:"Line identifier, increasing per insert"`
	Source    string  `json:"source" enum:"stdout,stderr,info" example:"stdout" doc:"Line origin"`
	Text      string  `json:"text" example:"compiling main.go" doc:"Line content without its line ending"`
	Timestamp float64 `json:"timestamp" example:"1737973800123.5" doc:"Milliseconds since the Unix epoch"`
}

type LogLinesData struct {
	CommandID int64         `json:"command_id" example:"7" doc:"Command identifier"`
	Lines     []LogLineData `json:"lines" doc:"Lines in id order"`
	Count     int           `json:"count" example:"2" doc:"Number of lines returned"`
}

type LogLinesResponse struct {
	Body LogLinesData
}
