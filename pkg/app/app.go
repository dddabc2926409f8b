package app

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/proxyforge/certgen/pkg/ca"
	"github.com/proxyforge/certgen/pkg/logging"
	"github.com/proxyforge/certgen/pkg/scratch"
)

const Name = "certgen"

type App struct {
	CAConfig  *ca.Config      `yaml:"certificate-authority" json:"certificate_authority" mapstructure:"certificate-authority"`
	ConfigDir string          `yaml:"config-dir" json:"config_dir" mapstructure:"config-dir"`
	DebugFlag bool            `yaml:"debug" json:"debug" mapstructure:"debug"`
	Domain    string          `yaml:"domain" json:"domain" mapstructure:"domain"`
	LogDir    string          `yaml:"log-dir" json:"log_dir" mapstructure:"log-dir"`
	Fs        afero.Fs        `yaml:"-" json:"-" mapstructure:"-"`
	Logger    *logging.Logger `yaml:"-" json:"-" mapstructure:"-"`
	Scratch   *scratch.Set    `yaml:"-" json:"-" mapstructure:"-"`
	CA        *ca.CA          `yaml:"-" json:"-" mapstructure:"-"`
}

type AppInitParams struct {
	CADir     string
	ConfigDir string
	Debug     bool
	Domain    string
	LogDir    string
}

func NewApp() *App {
	return new(App)
}

// Initializes the tool by loading the optional configuration file,
// creating the logger, the scratch file set, and the Certificate
// Authority. CLI options override configuration file values.
func (app *App) Init(initParams *AppInitParams) *App {
	app.Fs = afero.NewOsFs()
	if initParams != nil {
		app.DebugFlag = initParams.Debug
		app.ConfigDir = initParams.ConfigDir
		app.LogDir = initParams.LogDir
		app.Domain = initParams.Domain
	}
	app.initConfig()
	if initParams != nil && initParams.CADir != "" {
		app.CAConfig.Home = initParams.CADir
	}
	app.initLogger()
	app.initCA()
	return app
}

func (app *App) initConfig() {

	app.CAConfig = ca.DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(app.ConfigDir)
	viper.AddConfigPath(fmt.Sprintf("$HOME/.%s/", Name))
	viper.AddConfigPath(".")

	// The configuration file is optional; flag defaults cover a
	// bare working directory.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatal(err)
		}
	}

	if err := viper.Unmarshal(app); err != nil {
		log.Fatal(err)
	}
}

// Creates a new file and STDOUT logger. If the global DebugFlag is
// set, the logger is initialized in debug mode, executing all
// logger.Debug* statements.
func (app *App) initLogger() {
	level := slog.LevelInfo
	if app.DebugFlag {
		level = slog.LevelDebug
	}
	var logFile afero.File
	if app.LogDir != "" {
		if err := app.Fs.MkdirAll(app.LogDir, os.ModePerm); err != nil {
			log.Fatal(err)
		}
		path := fmt.Sprintf("%s/%s.log", app.LogDir, Name)
		f, err := app.Fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			log.Fatal(err)
		}
		logFile = f
	}
	app.Logger = logging.NewLogger(level, logFile)
	if app.DebugFlag {
		app.Logger.Debug("Starting logger in debug mode...")
		for k, v := range viper.AllSettings() {
			app.Logger.Debugf("%s: %+v", k, v)
		}
	}
}

func (app *App) initCA() {
	scratchSet, err := scratch.New(app.Logger, app.Fs, os.TempDir())
	if err != nil {
		app.Logger.FatalError(err)
	}
	app.Scratch = scratchSet

	certificateAuthority, err := ca.NewCA(ca.CAParams{
		Logger:  app.Logger,
		Config:  app.CAConfig,
		Fs:      app.Fs,
		Scratch: app.Scratch,
	})
	if err != nil {
		app.Logger.FatalError(err)
	}
	app.CA = certificateAuthority
}
