package env

import (
	"github.com/pandora-iot/pot-controller/internal/config"
)

var Cfg *config.Config
