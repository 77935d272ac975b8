package sqlite

import (
	"database/sql/driver"
	"fmt"
	"strings"

	msqlite "modernc.org/sqlite"

	"github.com/BuzzLyutic/notebook-tasks/internal/filter"
)

func init() {
	// Registered functions apply to every connection opened afterwards.
	if err := msqlite.RegisterDeterministicScalarFunction(filter.SQLiteLower, 1, goLower); err != nil {
		panic(fmt.Sprintf("register %s: %v", filter.SQLiteLower, err))
	}
}

// goLower folds text with strings.ToLower so search matches the memory store.
func goLower(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return nil, fmt.Errorf("%s: unsupported argument %T", filter.SQLiteLower, v)
	}
}
