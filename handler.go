package arena

import (
	"context"
	"net"
	"time"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/df-mc/dragonfly/server/cmd"
	"github.com/df-mc/dragonfly/server/item"
	"github.com/df-mc/dragonfly/server/player"
	"github.com/df-mc/dragonfly/server/player/skin"
	"github.com/df-mc/dragonfly/server/session"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"
)

// quitTimeout bounds how long a quitting player's world waits for the
// engine to remove them from their arena.
const quitTimeout = 3 * time.Second

// SessionHandler is the player.Handler of a player with a Session. It keeps
// the engine informed of disconnects and forwards every event to the next
// handler.
//
// Usage:
//
//	for p := range srv.Accept() {
//	    sess := sessions.NewSession(p)
//	    p.Handle(arena.NewHandler(engine, sessions, sess, myHandler{}))
//	}
//
// Concurrency:
// Handlers are executed synchronously by Dragonfly within the player's world
// transaction. HandleQuit blocks the world until the engine loop has removed
// the player from its arena, so the restored snapshot is what gets saved.
type SessionHandler struct {
	engine   *Engine
	sessions *Sessions
	session  *Session
	next     player.Handler
}

// NewHandler creates a handler for s. Events are forwarded to next, which
// may be nil.
func NewHandler(e *Engine, sessions *Sessions, s *Session, next player.Handler) *SessionHandler {
	if next == nil {
		next = player.NopHandler{}
	}
	return &SessionHandler{engine: e, sessions: sessions, session: s, next: next}
}

// Session returns the session associated with this handler.
func (h *SessionHandler) Session() *Session {
	return h.session
}

// Compile-time check that SessionHandler implements player.Handler.
var _ player.Handler = (*SessionHandler)(nil)

// HandleMove handles the player moving.
func (h *SessionHandler) HandleMove(ctx *player.Context, newPos mgl64.Vec3, newRot cube.Rotation) {
	h.next.HandleMove(ctx, newPos, newRot)
}

// HandleJump handles the player jumping.
func (h *SessionHandler) HandleJump(p *player.Player) {
	h.next.HandleJump(p)
}

// HandleTeleport handles the player being teleported.
func (h *SessionHandler) HandleTeleport(ctx *player.Context, pos mgl64.Vec3) {
	h.next.HandleTeleport(ctx, pos)
}

// HandleChangeWorld handles the player changing worlds.
func (h *SessionHandler) HandleChangeWorld(p *player.Player, before, after *world.World) {
	h.next.HandleChangeWorld(p, before, after)
}

// HandleToggleSprint handles the player toggling sprint.
func (h *SessionHandler) HandleToggleSprint(ctx *player.Context, after bool) {
	h.next.HandleToggleSprint(ctx, after)
}

// HandleToggleSneak handles the player toggling sneak.
func (h *SessionHandler) HandleToggleSneak(ctx *player.Context, after bool) {
	h.next.HandleToggleSneak(ctx, after)
}

// HandleChat handles the player sending a chat message.
func (h *SessionHandler) HandleChat(ctx *player.Context, message *string) {
	h.next.HandleChat(ctx, message)
}

// HandleFoodLoss handles the player losing food.
// Players waiting in an arena lobby do not get hungry.
func (h *SessionHandler) HandleFoodLoss(ctx *player.Context, from int, to *int) {
	if h.session.Protected() {
		ctx.Cancel()
		return
	}
	h.next.HandleFoodLoss(ctx, from, to)
}

// HandleHeal handles the player being healed.
func (h *SessionHandler) HandleHeal(ctx *player.Context, health *float64, src world.HealingSource) {
	h.next.HandleHeal(ctx, health, src)
}

// HandleHurt handles the player being hurt.
// Players waiting in an arena lobby take no damage.
func (h *SessionHandler) HandleHurt(ctx *player.Context, damage *float64, immune bool, attackImmunity *time.Duration, src world.DamageSource) {
	if h.session.Protected() {
		ctx.Cancel()
		return
	}
	h.next.HandleHurt(ctx, damage, immune, attackImmunity, src)
}

// HandleDeath handles the player dying.
func (h *SessionHandler) HandleDeath(p *player.Player, src world.DamageSource, keepInv *bool) {
	h.next.HandleDeath(p, src, keepInv)
}

// HandleRespawn handles the player respawning.
func (h *SessionHandler) HandleRespawn(p *player.Player, pos *mgl64.Vec3, w **world.World) {
	h.next.HandleRespawn(p, pos, w)
}

// HandleSkinChange handles the player changing their skin.
func (h *SessionHandler) HandleSkinChange(ctx *player.Context, sk *skin.Skin) {
	h.next.HandleSkinChange(ctx, sk)
}

// HandleFireExtinguish handles the player extinguishing fire.
func (h *SessionHandler) HandleFireExtinguish(ctx *player.Context, pos cube.Pos) {
	h.next.HandleFireExtinguish(ctx, pos)
}

// HandleStartBreak handles the player starting to break a block.
func (h *SessionHandler) HandleStartBreak(ctx *player.Context, pos cube.Pos) {
	h.next.HandleStartBreak(ctx, pos)
}

// HandleBlockBreak handles block breaking.
func (h *SessionHandler) HandleBlockBreak(ctx *player.Context, pos cube.Pos, drops *[]item.Stack, xp *int) {
	h.next.HandleBlockBreak(ctx, pos, drops, xp)
}

// HandleBlockPlace handles block placement.
func (h *SessionHandler) HandleBlockPlace(ctx *player.Context, pos cube.Pos, b world.Block) {
	h.next.HandleBlockPlace(ctx, pos, b)
}

// HandleBlockPick handles picking a block.
func (h *SessionHandler) HandleBlockPick(ctx *player.Context, pos cube.Pos, b world.Block) {
	h.next.HandleBlockPick(ctx, pos, b)
}

// HandleItemUse handles general item use.
func (h *SessionHandler) HandleItemUse(ctx *player.Context) {
	h.next.HandleItemUse(ctx)
}

// HandleItemUseOnBlock handles using an item on a block.
func (h *SessionHandler) HandleItemUseOnBlock(ctx *player.Context, pos cube.Pos, face cube.Face, clickPos mgl64.Vec3) {
	h.next.HandleItemUseOnBlock(ctx, pos, face, clickPos)
}

// HandleItemUseOnEntity handles using an item on an entity.
func (h *SessionHandler) HandleItemUseOnEntity(ctx *player.Context, e world.Entity) {
	h.next.HandleItemUseOnEntity(ctx, e)
}

// HandleItemRelease handles releasing a charged-use item.
func (h *SessionHandler) HandleItemRelease(ctx *player.Context, it item.Stack, dur time.Duration) {
	h.next.HandleItemRelease(ctx, it, dur)
}

// HandleItemConsume handles consuming an item.
func (h *SessionHandler) HandleItemConsume(ctx *player.Context, it item.Stack) {
	h.next.HandleItemConsume(ctx, it)
}

// HandleAttackEntity handles attacking an entity.
func (h *SessionHandler) HandleAttackEntity(ctx *player.Context, e world.Entity, force, height *float64, critical *bool) {
	h.next.HandleAttackEntity(ctx, e, force, height, critical)
}

// HandleExperienceGain handles XP gain.
func (h *SessionHandler) HandleExperienceGain(ctx *player.Context, amount *int) {
	h.next.HandleExperienceGain(ctx, amount)
}

// HandlePunchAir handles punching air.
func (h *SessionHandler) HandlePunchAir(ctx *player.Context) {
	h.next.HandlePunchAir(ctx)
}

// HandleSignEdit handles sign text editing.
func (h *SessionHandler) HandleSignEdit(ctx *player.Context, pos cube.Pos, frontSide bool, oldText, newText string) {
	h.next.HandleSignEdit(ctx, pos, frontSide, oldText, newText)
}

// HandleLecternPageTurn handles page turning on lecterns.
func (h *SessionHandler) HandleLecternPageTurn(ctx *player.Context, pos cube.Pos, oldPage int, newPage *int) {
	h.next.HandleLecternPageTurn(ctx, pos, oldPage, newPage)
}

// HandleItemDamage handles damaging an item.
func (h *SessionHandler) HandleItemDamage(ctx *player.Context, it item.Stack, damage int) {
	h.next.HandleItemDamage(ctx, it, damage)
}

// HandleItemPickup handles picking up an item.
func (h *SessionHandler) HandleItemPickup(ctx *player.Context, it *item.Stack) {
	h.next.HandleItemPickup(ctx, it)
}

// HandleHeldSlotChange handles held hotbar slot change.
func (h *SessionHandler) HandleHeldSlotChange(ctx *player.Context, from, to int) {
	h.next.HandleHeldSlotChange(ctx, from, to)
}

// HandleItemDrop handles dropping an item.
func (h *SessionHandler) HandleItemDrop(ctx *player.Context, it item.Stack) {
	h.next.HandleItemDrop(ctx, it)
}

// HandleTransfer handles server transfer.
func (h *SessionHandler) HandleTransfer(ctx *player.Context, addr *net.UDPAddr) {
	h.next.HandleTransfer(ctx, addr)
}

// HandleCommandExecution handles executing a command.
func (h *SessionHandler) HandleCommandExecution(ctx *player.Context, command cmd.Command, args []string) {
	h.next.HandleCommandExecution(ctx, command, args)
}

// HandleQuit force-removes the player from their arena and setup session
// before forwarding the event and closing the session.
func (h *SessionHandler) HandleQuit(p *player.Player) {
	s := h.session
	s.bind(p)
	ctx, cancel := context.WithTimeout(context.Background(), quitTimeout)
	err := h.engine.ExecWait(ctx, func() {
		if h.engine.InArena(s.UUID()) {
			if err := h.engine.LeaveArena(s, QuitOptions{Notify: true, Force: true}); err != nil {
				h.engine.log.Error("leave on quit", zap.String("player", s.Name()), zap.Error(err))
			}
		}
		if h.engine.setups.Has(s.UUID()) {
			_ = h.engine.CancelSetup(s)
		}
	})
	cancel()
	if err != nil {
		h.engine.log.Warn("quit cleanup did not finish", zap.String("player", s.Name()), zap.Error(err))
		s.abandon()
	}

	h.next.HandleQuit(p)
	h.sessions.remove(s)
}

// HandleDiagnostics handles a diagnostics request.
func (h *SessionHandler) HandleDiagnostics(p *player.Player, d session.Diagnostics) {
	h.next.HandleDiagnostics(p, d)
}

// Protection is a Listener that marks members as protected while their
// arena is not in a match: they take no damage and do not get hungry.
type Protection struct {
	NopListener
}

func (Protection) HandleJoin(a *Arena, s *Snapshot) {
	protect(s, a.State() != InGame)
}

func (Protection) HandleQuit(_ *Arena, s *Snapshot, _ bool) {
	protect(s, false)
}

func (Protection) HandleStateChange(a *Arena, _, to State) {
	for _, s := range a.Mode().Players() {
		protect(s, to != InGame)
	}
}

func protect(s *Snapshot, on bool) {
	if sess, ok := s.Player().(*Session); ok {
		sess.protected.Store(on)
	}
}
