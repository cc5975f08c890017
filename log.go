package arena

import (
	"go.uber.org/zap"
)

func zapArena(a *Arena) zap.Field {
	return zap.String("arena", a.id)
}

func zapKey(k string) zap.Field {
	return zap.String("key", k)
}

func zapPlayer(p Player) zap.Field {
	return zap.String("player", p.Name())
}
