// Package protocol defines the wire vocabulary shared by server and clients:
// the command set, the Request/Response envelopes, and the framed binary codec
// used to move them over a connection. One connection carries exactly one
// request and one response.
package protocol

import (
	"github.com/crewdb/crewd/internal/core/domain"
)

// Command enumerates every operation a client may request. Unknown names are
// rejected at the parse boundary, before any dispatch logic runs.
type Command string

const (
	CmdRegister                   Command = "register"
	CmdLogin                      Command = "login"
	CmdHelp                       Command = "help"
	CmdInfo                       Command = "info"
	CmdShow                       Command = "show"
	CmdAdd                        Command = "add"
	CmdUpdate                     Command = "update"
	CmdRemoveByID                 Command = "remove_by_id"
	CmdClear                      Command = "clear"
	CmdAddIfMin                   Command = "add_if_min"
	CmdAddIfMax                   Command = "add_if_max"
	CmdPrintDescending            Command = "print_descending"
	CmdPrintFieldAscendingSalary  Command = "print_field_ascending_salary"
	CmdPrintFieldDescendingSalary Command = "print_field_descending_salary"
)

var commands = map[Command]struct{}{
	CmdRegister: {}, CmdLogin: {}, CmdHelp: {}, CmdInfo: {}, CmdShow: {},
	CmdAdd: {}, CmdUpdate: {}, CmdRemoveByID: {}, CmdClear: {},
	CmdAddIfMin: {}, CmdAddIfMax: {}, CmdPrintDescending: {},
	CmdPrintFieldAscendingSalary: {}, CmdPrintFieldDescendingSalary: {},
}

// ParseCommand validates a raw command name from the wire.
func ParseCommand(name string) (Command, bool) {
	c := Command(name)
	_, ok := commands[c]
	return c, ok
}

// Credentials is the argument of the register command.
type Credentials struct {
	Username string
	Password string
}

// Request is the client-to-server envelope. The argument of a command is a
// tagged union expressed as optional fields: add and add_if_* set Worker,
// remove_by_id sets TargetID, update sets both, register sets Credentials,
// everything else carries no argument. Username and Password authenticate the
// request; Password may hold either the plaintext password or a session token
// issued by login.
type Request struct {
	Command     string
	Worker      *domain.Worker
	TargetID    *int64
	Credentials *Credentials
	Username    string
	Password    string
}

// Response is the server-to-client envelope. Exactly one of the result fields
// is populated, depending on the command; Token is set only by a successful
// login.
type Response struct {
	Success  bool
	Message  string
	Token    string
	Worker   *domain.Worker
	Workers  []domain.Worker
	Salaries []int64
	User     *domain.User
}

// Failure builds a failed response with the given message.
func Failure(message string) Response {
	return Response{Success: false, Message: message}
}

// Ok builds a plain successful response with the given message.
func Ok(message string) Response {
	return Response{Success: true, Message: message}
}
