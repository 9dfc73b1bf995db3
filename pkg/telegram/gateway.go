package telegram

import (
	"sync"

	"atg_engage/pkg/orchestrator"

	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
)

// Gateway выполняет операции с каналами через API Telegram от имени одного аккаунта.
// Живёт в пределах одного client.Run.
type Gateway struct {
	api *tg.Client
	log zerolog.Logger

	mu     sync.Mutex
	byName map[string]*tg.Channel
	byID   map[int64]*tg.Channel
}

var _ orchestrator.ChannelGateway = (*Gateway)(nil)

// NewGateway создаёт шлюз поверх клиента API.
func NewGateway(api *tg.Client, logger zerolog.Logger) *Gateway {
	return &Gateway{
		api:    api,
		log:    logger,
		byName: make(map[string]*tg.Channel),
		byID:   make(map[int64]*tg.Channel),
	}
}
