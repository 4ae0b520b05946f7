package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/crewdb/crewd/internal/core/domain"
	"github.com/crewdb/crewd/internal/ops/metrics"
	"github.com/crewdb/crewd/internal/protocol"
)

// Dispatcher maps a decoded request to a store or authenticator operation and
// builds the response. It is pure with respect to transport: it never touches
// a connection, and nothing it does can escape as a panic or error into the
// pipeline. Every failure becomes a failed Response.
type Dispatcher struct {
	store *CollectionStore
	auth  *Authenticator
	log   zerolog.Logger
}

func NewDispatcher(store *CollectionStore, auth *Authenticator, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store: store,
		auth:  auth,
		log:   log.With().Str("component", "dispatcher").Logger(),
	}
}

// Handle executes one request end to end.
func (d *Dispatcher) Handle(ctx context.Context, req *protocol.Request) (resp protocol.Response) {
	if req == nil {
		return protocol.Failure("server error: empty request")
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Str("command", req.Command).
				Str("username", req.Username).Msg("panic while handling command")
			resp = protocol.Failure("internal server error")
		}
		result := "ok"
		if !resp.Success {
			result = "error"
		}
		metrics.CommandsTotal.WithLabelValues(req.Command, result).Inc()
		metrics.CommandDuration.WithLabelValues(req.Command).Observe(time.Since(start).Seconds())
	}()

	cmd, known := protocol.ParseCommand(req.Command)
	if !known {
		d.log.Warn().Str("command", req.Command).Str("username", req.Username).Msg("unknown command")
		return protocol.Failure(fmt.Sprintf("unknown command: %q", req.Command))
	}

	d.log.Debug().Str("command", string(cmd)).Str("username", req.Username).Msg("handling request")

	// register and login are the only commands exempt from the auth gate.
	switch cmd {
	case protocol.CmdRegister:
		return d.register(ctx, req)
	case protocol.CmdLogin:
		return d.login(ctx, req)
	}

	user, err := d.auth.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		d.log.Warn().Str("command", string(cmd)).Str("username", req.Username).Msg("authentication failed")
		return protocol.Failure("authentication failed: access denied. Log in or register first.")
	}

	return d.dispatch(ctx, cmd, req, user)
}

func (d *Dispatcher) register(ctx context.Context, req *protocol.Request) protocol.Response {
	if req.Credentials == nil {
		return protocol.Failure("invalid argument for 'register': expected a username/password pair")
	}
	user, err := d.auth.Register(ctx, req.Credentials.Username, req.Credentials.Password)
	switch {
	case err == nil:
		return protocol.Ok(fmt.Sprintf("user %s registered", user.Username))
	case errors.Is(err, domain.ErrUserExists):
		return protocol.Failure(fmt.Sprintf("could not register %s: username already taken", req.Credentials.Username))
	case errors.Is(err, domain.ErrInvalidCredentials):
		return protocol.Failure("username and password must not be empty")
	default:
		d.log.Error().Err(err).Str("username", req.Credentials.Username).Msg("registration failed")
		return protocol.Failure("could not register user")
	}
}

func (d *Dispatcher) login(ctx context.Context, req *protocol.Request) protocol.Response {
	user, token, err := d.auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		return protocol.Failure("login failed: invalid username or password")
	}
	pub := user.Public()
	return protocol.Response{
		Success: true,
		Message: fmt.Sprintf("user %s logged in", user.Username),
		Token:   token,
		User:    &pub,
	}
}

// dispatch runs an authenticated command. The mapping is total over the
// Command enum; the compiler-visible default only fires if the enum grows
// without this switch keeping up.
func (d *Dispatcher) dispatch(ctx context.Context, cmd protocol.Command, req *protocol.Request, user *domain.User) protocol.Response {
	switch cmd {
	case protocol.CmdHelp:
		return protocol.Ok(helpText)

	case protocol.CmdInfo:
		info := d.store.Info()
		return protocol.Ok(fmt.Sprintf("collection kind: %s\ninitialized: %s\nelements: %d",
			info.Kind, info.InitializedAt.Format(time.RFC3339), info.Size))

	case protocol.CmdShow:
		workers := d.store.SortedByLocation()
		msg := "collection elements (sorted by location):"
		if len(workers) == 0 {
			msg = "the collection is empty"
		}
		return protocol.Response{Success: true, Message: msg, Workers: workers}

	case protocol.CmdAdd:
		if req.Worker == nil {
			return protocol.Failure("invalid argument for 'add': expected a worker")
		}
		stored, err := d.store.Add(ctx, *req.Worker, user.ID)
		if err != nil {
			return d.failureFromError(cmd, err)
		}
		return protocol.Response{
			Success: true,
			Message: fmt.Sprintf("worker added with id %d", stored.ID),
			Worker:  stored,
		}

	case protocol.CmdUpdate:
		if req.TargetID == nil || req.Worker == nil {
			return protocol.Failure("invalid argument for 'update': expected an id and a worker")
		}
		updated, err := d.store.Update(ctx, *req.TargetID, *req.Worker, user.ID)
		if err != nil {
			return d.failureFromError(cmd, err)
		}
		return protocol.Response{
			Success: true,
			Message: fmt.Sprintf("worker %d updated", updated.ID),
			Worker:  updated,
		}

	case protocol.CmdRemoveByID:
		if req.TargetID == nil {
			return protocol.Failure("invalid argument for 'remove_by_id': expected an id")
		}
		reconciled, err := d.store.RemoveByID(ctx, *req.TargetID, user.ID)
		if err != nil {
			return d.failureFromError(cmd, err)
		}
		if reconciled {
			return protocol.Ok(fmt.Sprintf("worker %d removed durably; memory was out of sync and has been reloaded", *req.TargetID))
		}
		return protocol.Ok(fmt.Sprintf("worker %d removed", *req.TargetID))

	case protocol.CmdClear:
		removed, reconciled, err := d.store.Clear(ctx, user.ID)
		if err != nil {
			return d.failureFromError(cmd, err)
		}
		if reconciled {
			return protocol.Ok(fmt.Sprintf("your workers were cleared (%d durably removed); a count mismatch forced a collection reload", removed))
		}
		return protocol.Ok(fmt.Sprintf("all %d workers you own were removed", removed))

	case protocol.CmdAddIfMin:
		return d.conditionalAdd(ctx, cmd, req, user, d.store.AddIfMin, "smaller than the current minimum")

	case protocol.CmdAddIfMax:
		return d.conditionalAdd(ctx, cmd, req, user, d.store.AddIfMax, "greater than the current maximum")

	case protocol.CmdPrintDescending:
		workers := d.store.SortedDescending()
		msg := "collection elements in descending id order:"
		if len(workers) == 0 {
			msg = "the collection is empty"
		}
		return protocol.Response{Success: true, Message: msg, Workers: workers}

	case protocol.CmdPrintFieldAscendingSalary:
		return salariesResponse(d.store.SalariesAscending(), "ascending")

	case protocol.CmdPrintFieldDescendingSalary:
		return salariesResponse(d.store.SalariesDescending(), "descending")

	default:
		d.log.Error().Str("command", string(cmd)).Msg("command parsed but not dispatched")
		return protocol.Failure(fmt.Sprintf("unknown command: %q", cmd))
	}
}

type conditionalAddFunc func(ctx context.Context, w domain.Worker, ownerID int64) (*domain.Worker, bool, error)

func (d *Dispatcher) conditionalAdd(ctx context.Context, cmd protocol.Command, req *protocol.Request, user *domain.User, add conditionalAddFunc, condition string) protocol.Response {
	if req.Worker == nil {
		return protocol.Failure(fmt.Sprintf("invalid argument for %q: expected a worker", cmd))
	}
	stored, inserted, err := add(ctx, *req.Worker, user.ID)
	if err != nil {
		return d.failureFromError(cmd, err)
	}
	if !inserted {
		return protocol.Failure(fmt.Sprintf("worker %s not added: it is not %s", req.Worker.Name, condition))
	}
	return protocol.Response{
		Success: true,
		Message: fmt.Sprintf("worker %s added with id %d", stored.Name, stored.ID),
		Worker:  stored,
	}
}

func salariesResponse(salaries []int64, order string) protocol.Response {
	msg := fmt.Sprintf("salary values in %s order:", order)
	if len(salaries) == 0 {
		msg = "no workers have a salary set"
	}
	return protocol.Response{Success: true, Message: msg, Salaries: salaries}
}

// failureFromError maps known domain errors to client-safe messages;
// unexpected errors never leak their cause across the wire.
func (d *Dispatcher) failureFromError(cmd protocol.Command, err error) protocol.Response {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return protocol.Failure(fmt.Sprintf("validation failed for %q: %s", cmd, ve.Error()))
	case errors.Is(err, domain.ErrWorkerNotFound):
		return protocol.Failure("worker not found")
	case errors.Is(err, domain.ErrNotOwner):
		return protocol.Failure("you may only modify workers you created")
	case errors.Is(err, domain.ErrStorage):
		d.log.Error().Err(err).Str("command", string(cmd)).Msg("storage failure")
		return protocol.Failure(fmt.Sprintf("could not complete %q: storage failure", cmd))
	default:
		d.log.Error().Err(err).Str("command", string(cmd)).Msg("unhandled error")
		return protocol.Failure("internal server error")
	}
}

const helpText = `register <username> <password> : register a new user
login <username> <password> : log in and receive a session token
help : print this command reference
info : print collection information (kind, initialization date, element count)
show : print all collection elements sorted by location
add {element} : add a new worker to the collection
update id {element} : update the worker with the given id
remove_by_id id : remove the worker with the given id
clear : remove every worker you own
add_if_min {element} : add the worker only if its id is below the current minimum
add_if_max {element} : add the worker only if its id is above the current maximum
print_descending : print all elements in descending id order
print_field_ascending_salary : print all salary values in ascending order
print_field_descending_salary : print all salary values in descending order`
