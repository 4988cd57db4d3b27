package httpapi

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/park285/rpsmatch/internal/domain"
	"github.com/park285/rpsmatch/internal/match"
	"github.com/park285/rpsmatch/pkg/rpsdto"
)

func (a *api) health(c *fiber.Ctx) error {
	return c.JSON(rpsdto.Health{Status: "ok", Backend: a.backend})
}

func pathID(c *fiber.Ctx) (int64, error) {
	raw := c.Params("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, match.InvalidID(raw)
	}
	return id, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return badBody(err)
	}
	return nil
}

func (a *api) registerPlayer(c *fiber.Ctx) error {
	var req rpsdto.RegisterPlayerRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	p, err := a.svc.RegisterPlayer(c.UserContext(), req.Handle)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toPlayer(p))
}

func (a *api) listPlayers(c *fiber.Ctx) error {
	ps, err := a.svc.ListPlayers(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(toPlayers(ps))
}

func (a *api) getPlayer(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	p, err := a.svc.GetPlayer(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(toPlayer(p))
}

func (a *api) getPlayerByHandle(c *fiber.Ctx) error {
	p, err := a.svc.GetPlayerByHandle(c.UserContext(), utils.CopyString(c.Params("handle")))
	if err != nil {
		return err
	}
	return c.JSON(toPlayer(p))
}

func (a *api) deletePlayer(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := a.svc.DeletePlayer(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (a *api) playerMatches(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ms, err := a.svc.ListMatchesForPlayer(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(toMatches(ms))
}

func (a *api) playerStats(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	st, err := a.svc.PlayerStats(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(toPlayerStats(st))
}

func (a *api) moveStats(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	st, err := a.svc.MoveStats(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(toMoveStats(st))
}

func (a *api) roundsWon(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	rs, err := a.svc.ListRoundsWonBy(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(toRounds(rs))
}

func (a *api) createMatch(c *fiber.Ctx) error {
	var req rpsdto.CreateMatchRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	m, err := a.svc.CreateMatch(c.UserContext(), req.PlayerAID, req.PlayerBID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toMatch(m))
}

func matchFilter(c *fiber.Ctx) (match.Filter, error) {
	var f match.Filter
	if raw := strings.TrimSpace(c.Query("state")); raw != "" {
		switch st := domain.MatchState(strings.ToUpper(raw)); st {
		case domain.MatchInProgress, domain.MatchFinished:
			f.State = st
		default:
			return f, badFilter("state", raw)
		}
	}
	if raw := strings.TrimSpace(c.Query("player_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return f, badFilter("player_id", raw)
		}
		f.PlayerID = id
	}
	return f, nil
}

func (a *api) listMatches(c *fiber.Ctx) error {
	f, err := matchFilter(c)
	if err != nil {
		return err
	}
	ms, err := a.svc.ListMatches(c.UserContext(), f)
	if err != nil {
		return err
	}
	return c.JSON(toMatches(ms))
}

func (a *api) getMatch(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	m, err := a.svc.GetMatch(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(toMatch(m))
}

func (a *api) getMatchFull(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	full, err := a.svc.GetMatchFull(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(toMatchFull(full))
}

func (a *api) deleteMatch(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := a.svc.DeleteMatch(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (a *api) matchStatus(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	st, err := a.svc.MatchStatus(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(toStatus(st))
}

func (a *api) reevaluate(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	st, err := a.svc.Reevaluate(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(toStatus(st))
}

func (a *api) listRounds(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	rs, err := a.svc.ListRounds(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(toRounds(rs))
}

func (a *api) listDraws(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	rs, err := a.svc.ListDraws(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(toRounds(rs))
}

func (a *api) recordRound(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req rpsdto.RecordRoundRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	r, err := a.svc.RecordRound(c.UserContext(), id, req.MoveA, req.MoveB)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toRound(r))
}

func (a *api) createRematch(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	m, err := a.svc.CreateRematch(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toMatch(m))
}

func (a *api) listRematches(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ms, err := a.svc.ListRematches(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(toMatches(ms))
}
