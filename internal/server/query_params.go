package server

import (
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
)

var errInvalidSnowflakeID = errors.New("invalid_snowflake_id")

func parseSnowflakeID(value string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return 0, errInvalidSnowflakeID
	}
	return parsed, nil
}
