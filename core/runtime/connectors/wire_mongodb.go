package connectors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoOptions "go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/domain/interfaces"
	"github.com/yetii/yetii/core/runtime/binder"
	"github.com/yetii/yetii/core/shared/errors"
)

func dialMongoDB(ctx context.Context, c *config.Connection, password string) (interfaces.Conn, error) {
	uri, err := urlDSN(c.DSN, c.Options, "")
	if err != nil {
		return nil, connectionFailed(c, "invalid address", err)
	}

	opts := mongoOptions.Client().ApplyURI(uri).SetMaxPoolSize(1)
	if password != "" && opts.Auth != nil {
		opts.Auth.Password = password
		opts.Auth.PasswordSet = true
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, connectionFailed(c, "failed to connect to mongodb", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, connectionFailed(c, "failed to ping mongodb", err)
	}
	return &mongoConn{id: c.ID, client: client}, nil
}

// mongoStatement is the JSON form of a MongoDB command.
// Command is kept as json.RawMessage so it can be parsed into an ordered bson.D,
// which RunCommand requires (the command name must be the first key).
// Command values may use Extended JSON.
//
//	{ "database": "erp", "command": { "find": "orders", "filter": { "status": "open" } } }
//	{ "database": "erp", "command": { "delete": "orders", "deletes": [{ "q": { "id": 7 }, "limit": 1 }] } }
type mongoStatement struct {
	Database string          `json:"database"`
	Command  json.RawMessage `json:"command"`
}

type preparedMongo struct {
	database string
	command  bson.D
}

// mongoConn runs database commands through a dedicated client.
type mongoConn struct {
	id     string
	client *mongo.Client
	broken bool
}

func (c *mongoConn) BindStyle() binder.Style {
	return binder.StyleInlineJSON
}

func (c *mongoConn) Prepare(_ context.Context, text string) (*interfaces.Statement, error) {
	var stmt mongoStatement
	if err := json.Unmarshal([]byte(text), &stmt); err != nil {
		return nil, c.invalid("statement must be valid JSON", err)
	}
	if stmt.Database == "" {
		return nil, c.invalid("statement must include database", nil)
	}
	if len(stmt.Command) == 0 {
		return nil, c.invalid("statement must include command", nil)
	}
	cmd, err := commandToBsonD(stmt.Command)
	if err != nil {
		return nil, c.invalid("invalid command", err)
	}
	return &interfaces.Statement{
		Text:     text,
		NumInput: 0,
		Handle:   &preparedMongo{database: stmt.Database, command: cmd},
	}, nil
}

func (c *mongoConn) Bind(stmt *interfaces.Statement, args []any) error {
	if err := checkArity(stmt, args); err != nil {
		return err
	}
	stmt.Args = args
	return nil
}

func (c *mongoConn) Execute(ctx context.Context, stmt *interfaces.Statement) (*interfaces.Result, error) {
	prepared, ok := stmt.Handle.(*preparedMongo)
	if !ok {
		return nil, errors.NewAppError(errors.ErrCodeInternalError, "statement was not prepared on this connection", nil)
	}

	var result bson.M
	if err := c.client.Database(prepared.database).RunCommand(ctx, prepared.command).Decode(&result); err != nil {
		return nil, c.fail(ctx, err)
	}
	return &interfaces.Result{Handle: result}, nil
}

// Fetch counts the documents of a cursor reply (find, aggregate) or reports the "n"
// field written by insert, update, delete and count.
func (c *mongoConn) Fetch(_ context.Context, res *interfaces.Result) (int64, error) {
	result, ok := res.Handle.(bson.M)
	if !ok {
		return res.RowsAffected, nil
	}
	if firstBatch, ok := field(field(result, "cursor"), "firstBatch").(bson.A); ok {
		return int64(len(firstBatch)), nil
	}
	switch n := field(result, "n").(type) {
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	}
	return 0, nil
}

func (c *mongoConn) Reusable() bool {
	return !c.broken
}

func (c *mongoConn) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

func (c *mongoConn) invalid(message string, err error) error {
	return errors.NewAppError(errors.ErrCodeExecutionFailed, fmt.Sprintf("mongodb %s on connection '%s'", message, c.id), err)
}

func (c *mongoConn) fail(ctx context.Context, err error) error {
	message := fmt.Sprintf("mongodb command on connection '%s'", c.id)
	var cmdErr mongo.CommandError
	if stderrors.As(err, &cmdErr) && !cmdErr.HasErrorLabel("NetworkError") && ctx.Err() == nil {
		return errors.NewAppError(errors.ErrCodeExecutionFailed, message, err)
	}
	classified, broken := classifyStatementError(ctx, message, err)
	if mongo.IsNetworkError(err) && !broken {
		classified, broken = errors.NewAppError(errors.ErrCodeConnectionFailed, message, err), true
	}
	if broken {
		c.broken = true
	}
	return classified
}

// field reads key from a decoded document, which may arrive as bson.M or bson.D.
func field(doc any, key string) any {
	switch d := doc.(type) {
	case bson.M:
		return d[key]
	case bson.D:
		for _, e := range d {
			if e.Key == key {
				return e.Value
			}
		}
	}
	return nil
}

// commandToBsonD parses a command written in relaxed Extended JSON into a bson.D.
// Nested documents decode as bson.D too, so key order survives at every level and
// values such as {"$oid": ...} or {"$date": ...} become their BSON types.
func commandToBsonD(raw json.RawMessage) (bson.D, error) {
	var cmd bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}
