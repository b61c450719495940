package main

// Teleport moves the player onto their partner. Every failed gate declines
// with a teleportStatus message and changes nothing.
func (g *Game) Teleport(id PlayerID) bool {
	p := g.sessions.Get(id)
	if p == nil {
		return false
	}
	decline := func(status, message string) bool {
		g.send(id, TeleportStatusMsg{Status: status, Message: message})
		return false
	}

	if g.round.State != InProgress || !g.round.Active(id) {
		return decline(TeleportNotInShift, "Teleport is only available during a shift")
	}
	if p.TeleportCharges <= 0 {
		return decline(TeleportNoCharges, "No teleport charges remaining")
	}
	now := g.sched.Now()
	if !p.LastTeleport.IsZero() && now.Sub(p.LastTeleport) <= g.cfg.TeleportCooldown {
		return decline(TeleportCooldown, "Teleport is recharging")
	}
	partnerID, ok := g.partners.Partner(id)
	if !ok {
		return decline(TeleportNoPartner, "No partner available")
	}
	partner := g.sessions.Get(partnerID)
	if partner == nil || partner.Body == nil || !g.round.Active(partnerID) {
		g.partners.Remove(id)
		return decline(TeleportInvalidPartner, "Partner no longer in game")
	}

	p.TeleportCharges--
	p.LastTeleport = now
	p.Body.Position = partner.Body.Position
	p.Body.Velocity = Vec3{}

	g.send(id, TeleportSuccessMsg{ChargesLeft: p.TeleportCharges, Position: p.Body.Position})
	g.send(id, SetPositionMsg{Position: p.Body.Position, Reason: "teleport"})
	g.track(EvtTeleport, p, map[string]any{"partner": int(partnerID), "charges": p.TeleportCharges})
	g.pushState(p)
	return true
}
