package httpapi

import "github.com/gofiber/fiber/v2"

func (a *api) routes(r fiber.Router) {
	players := r.Group("/players")
	players.Post("/", a.registerPlayer)
	players.Get("/", a.listPlayers)
	players.Get("/by-handle/:handle", a.getPlayerByHandle)
	players.Get("/:id", a.getPlayer)
	players.Delete("/:id", a.deletePlayer)
	players.Get("/:id/matches", a.playerMatches)
	players.Get("/:id/stats", a.playerStats)
	players.Get("/:id/moves", a.moveStats)
	players.Get("/:id/rounds/won", a.roundsWon)

	matches := r.Group("/matches")
	matches.Post("/", a.createMatch)
	matches.Get("/", a.listMatches)
	matches.Get("/:id", a.getMatch)
	matches.Delete("/:id", a.deleteMatch)
	matches.Get("/:id/full", a.getMatchFull)
	matches.Get("/:id/status", a.matchStatus)
	matches.Post("/:id/reevaluate", a.reevaluate)
	matches.Get("/:id/rounds", a.listRounds)
	matches.Post("/:id/rounds", a.recordRound)
	matches.Get("/:id/rounds/draws", a.listDraws)
	matches.Post("/:id/rematch", a.createRematch)
	matches.Get("/:id/rematches", a.listRematches)
}
