package redisstore

import "strconv"

const prefix = "rps:"

func keySeq(kind string) string          { return prefix + "seq:" + kind }
func keyPlayer(id int64) string          { return prefix + "player:" + strconv.FormatInt(id, 10) }
func keyPlayers() string                 { return prefix + "players" }
func keyHandles() string                 { return prefix + "index:handle" }
func keyPlayerMatches(id int64) string   { return keyPlayer(id) + ":matches" }
func keyMatch(id int64) string           { return prefix + "match:" + strconv.FormatInt(id, 10) }
func keyMatches() string                 { return prefix + "matches" }
func keyRounds(matchID int64) string     { return keyMatch(matchID) + ":rounds" }
func keyRematches(originID int64) string { return keyMatch(originID) + ":rematches" }
