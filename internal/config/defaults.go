package config

const (
	defaultDataDir        = "~/.local/share/trackbridge/data"
	defaultLogDir         = "~/.local/share/trackbridge/logs"
	defaultAPIBind        = "127.0.0.1:7491"
	defaultPython         = "python3"
	defaultConvertScript  = "scripts/create_viewer.py"
	defaultExportScript   = "scripts/export_ply.py"
	defaultProgressFormat = "percent"
	defaultColorSource    = "video"
)

var defaultImporterScripts = []string{
	"blender_addon/import_spatracker2_ply.py",
	"blender_addon/import_spatracker2_cameras.py",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Server: Server{
			AllowedOrigins:      []string{"*"},
			MaxUploadMB:         2048,
			ReadTimeoutSeconds:  300,
			WriteTimeoutSeconds: 600,
		},
		Converter: Converter{
			Python:         defaultPython,
			ConvertScript:  defaultConvertScript,
			ExportScript:   defaultExportScript,
			ViewerWidth:    1920,
			ViewerHeight:   1080,
			ProgressFormat: defaultProgressFormat,
		},
		Export: Export{
			DefaultFPS:         30,
			DefaultScale:       1.0,
			DefaultColorSource: defaultColorSource,
			ImporterScripts:    append([]string(nil), defaultImporterScripts...),
		},
		Logging: Logging{
			Format:        "console",
			Level:         "info",
			RetentionDays: 60,
		},
	}
}
