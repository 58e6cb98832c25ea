package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gitlab.com/lologarithm/spa/climate"
	"gitlab.com/lologarithm/spa/panel"
	"gitlab.com/lologarithm/spa/spa"
)

// Config is server configuration.
// Includes the spa entities, users&access levels as well as Mailgun config to send warning emails.
type Config struct {
	DeviceName     string `mapstructure:"device_name"`
	SetEntity      string `mapstructure:"set_entity"`
	MeasuredEntity string `mapstructure:"measured_entity"`
	HeaterEntity   string `mapstructure:"heater_entity"`
	PumpEntity     string `mapstructure:"pump_entity"`
	LightEntity    string `mapstructure:"light_entity"`
	ErrorEntity    string `mapstructure:"error_entity"`
	Buttons        ButtonConfig

	HotTemp    float64 `mapstructure:"hot_temp"`
	ColdTemp   float64 `mapstructure:"cold_temp"`
	HotScript  string  `mapstructure:"hot_script"`
	ColdScript string  `mapstructure:"cold_script"`
	SetLabel   string  `mapstructure:"set_label"`

	Converge      ConvergeConfig
	Listen        string
	Users         map[string]userAccess
	Mailgun       MailgunConfig
	HomeAssistant HostConfig `mapstructure:"home_assistant"`
	Panel         PanelConfig
}

// ButtonConfig holds the button entity ids.
type ButtonConfig struct {
	Warm   string
	Cool   string
	Pump   string
	Lights string
}

// ConvergeConfig tunes the set temperature loop.
type ConvergeConfig struct {
	MaxRounds   int           `mapstructure:"max_rounds"`
	PressDelay  time.Duration `mapstructure:"press_delay"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	MaxPresses  int           `mapstructure:"max_presses"`
}

// MailgunConfig is the settings needed to use Mailgun for emails.
type MailgunConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Domain     string
	Sender     string
	Recipients []string
}

// HostConfig is where to find the home automation host.
type HostConfig struct {
	URL   string
	Token string
}

// PanelConfig is the BCM pin wiring used when driving the panel directly.
type PanelConfig struct {
	ClockPin  int           `mapstructure:"clock_pin"`
	DataPin   int           `mapstructure:"data_pin"`
	WarmPin   int           `mapstructure:"warm_pin"`
	CoolPin   int           `mapstructure:"cool_pin"`
	LightsPin int           `mapstructure:"lights_pin"`
	PumpPin   int           `mapstructure:"pump_pin"`
	PressTime time.Duration `mapstructure:"press_time"`
}

func setDefaults(v *viper.Viper) {
	for _, k := range []string{
		"device_name", "set_entity", "measured_entity", "heater_entity", "pump_entity",
		"light_entity", "error_entity", "buttons.warm", "buttons.cool", "buttons.pump",
		"buttons.lights", "hot_script", "cold_script", "mailgun.api_key", "mailgun.domain",
		"mailgun.sender", "home_assistant.url", "home_assistant.token",
	} {
		v.SetDefault(k, "")
	}
	v.SetDefault("hot_temp", 103.0)
	v.SetDefault("cold_temp", 98.0)
	v.SetDefault("set_label", "Set")
	v.SetDefault("converge.max_rounds", spa.DefaultMaxRounds)
	v.SetDefault("converge.press_delay", spa.DefaultPressDelay)
	v.SetDefault("converge.settle_delay", spa.DefaultSettleDelay)
	v.SetDefault("converge.max_presses", spa.DefaultMaxPresses)
	v.SetDefault("listen", ":80")
	v.SetDefault("users", map[string]any{})
	v.SetDefault("mailgun.recipients", []string{})
	v.SetDefault("panel.clock_pin", 17)
	v.SetDefault("panel.data_pin", 27)
	v.SetDefault("panel.warm_pin", 5)
	v.SetDefault("panel.cool_pin", 6)
	v.SetDefault("panel.lights_pin", 13)
	v.SetDefault("panel.pump_pin", 19)
	v.SetDefault("panel.press_time", panel.DefaultPressTime)
}

// loadConfig reads the config file at path, if it exists, with SPA_ prefixed
// environment variables taking precedence. ex: SPA_HOME_ASSISTANT_TOKEN
func loadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("SPA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("reading config %s: %w", path, err)
			}
			log.Printf("Failed to open config: %v", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	cfg.fillEntities()
	for name, u := range cfg.Users {
		log.Printf("User: %s, Access: %d", name, u.Access)
	}
	return cfg, nil
}

// fillEntities derives any unset entity ids from the device name the way the spa
// firmware names them.
func (c *Config) fillEntities() {
	dev := spa.NormalizeName(c.DeviceName)
	def := func(field *string, domain, suffix string) {
		if *field != "" {
			return
		}
		name := "spa_" + suffix
		if dev != "" {
			name = dev + "_" + name
		}
		*field = domain + "." + name
	}
	def(&c.SetEntity, "sensor", "set_temp")
	def(&c.MeasuredEntity, "sensor", "measured_temp")
	def(&c.HeaterEntity, "binary_sensor", "heater")
	def(&c.PumpEntity, "binary_sensor", "pump")
	def(&c.LightEntity, "binary_sensor", "light")
	def(&c.ErrorEntity, "sensor", "error_code")
	def(&c.Buttons.Warm, "button", "warm")
	def(&c.Buttons.Cool, "button", "cool")
	def(&c.Buttons.Pump, "button", "pump")
	def(&c.Buttons.Lights, "button", "lights")
}

// entities lists every entity the dashboard shows or presses.
func (c Config) entities() []string {
	ids := []string{
		c.SetEntity, c.MeasuredEntity, c.HeaterEntity, c.PumpEntity, c.LightEntity, c.ErrorEntity,
		c.Buttons.Warm, c.Buttons.Cool, c.Buttons.Pump, c.Buttons.Lights,
	}
	for _, s := range []string{c.HotScript, c.ColdScript} {
		if s != "" {
			ids = append(ids, s)
		}
	}
	return ids
}

// request is the convergence request for the configured entities.
func (c Config) request() spa.Request {
	return spa.Request{
		Current:     c.SetEntity,
		Increment:   spa.Press(c.Buttons.Warm),
		Decrement:   spa.Press(c.Buttons.Cool),
		PressDelay:  c.Converge.PressDelay,
		SettleDelay: c.Converge.SettleDelay,
		MaxRounds:   c.Converge.MaxRounds,
		MaxPresses:  c.Converge.MaxPresses,
	}.WithDefaults()
}

// presets returns the hot and cold presets by name.
func (c Config) presets() map[string]climate.Preset {
	return map[string]climate.Preset{
		"hot":  {Name: "Set Hot", Target: c.HotTemp, Script: c.HotScript},
		"cold": {Name: "Set Cold", Target: c.ColdTemp, Script: c.ColdScript},
	}
}

// buttonPins maps the button entity ids to panel GPIO pins.
func (c Config) buttonPins() map[string]int {
	return map[string]int{
		c.Buttons.Warm:   c.Panel.WarmPin,
		c.Buttons.Cool:   c.Panel.CoolPin,
		c.Buttons.Lights: c.Panel.LightsPin,
		c.Buttons.Pump:   c.Panel.PumpPin,
	}
}
