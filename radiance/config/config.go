package config

import (
	"os"
	"strconv"

	"radiance/radiance/prompts"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
	JWTSecret  string

	LLMBaseURL string
	LLMAPIKey  string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string

	ModelsFile string
	// Ceiling for one stage's completion call, in seconds.
	StageTimeoutSeconds int
}

func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		DBUser:     getEnv("DB_USER", ""),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     getEnv("DB_PORT", ""),
		DBName:     getEnv("DB_NAME", ""),
		JWTSecret:  getEnv("JWT_SECRET", ""),

		LLMBaseURL: getEnv("LLM_BASE_URL", "https://api.perplexity.ai"),
		LLMAPIKey:  getEnv("LLM_API_KEY", ""),

		MinIOEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinIOBucket:    getEnv("MINIO_BUCKET", "radiance-reports"),

		ModelsFile:          getEnv("MODELS_FILE", "radiance/configs/models.yaml"),
		StageTimeoutSeconds: getEnvInt("STAGE_TIMEOUT_SECONDS", 120),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

// StageModels maps each diagnosis role to the model identifier used for its
// completion call. The defaults preserve the capability/cost split the
// product shipped with: a document/image-capable deep-research model for
// report analysis, a reasoning model for the specialist consult, and a fast
// model everywhere else.
type StageModels struct {
	Default            string `yaml:"default"`
	MedicalAnalyst     string `yaml:"medical_analyst"`
	GeneralPhysician   string `yaml:"general_physician"`
	SpecialistDoctor   string `yaml:"specialist_doctor"`
	Pathologist        string `yaml:"pathologist"`
	Nutritionist       string `yaml:"nutritionist"`
	Pharmacist         string `yaml:"pharmacist"`
	FollowUpSpecialist string `yaml:"follow_up_specialist"`
	Summarizer         string `yaml:"summarizer"`
}

func DefaultStageModels() StageModels {
	return StageModels{
		Default:          "sonar-pro",
		MedicalAnalyst:   "sonar-deep-research",
		SpecialistDoctor: "sonar-reasoning",
	}
}

// LoadStageModels reads the per-stage model map from a yaml file. A missing
// file is not an error: the built-in defaults apply.
func LoadStageModels(path string) (StageModels, error) {
	models := DefaultStageModels()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models, nil
		}
		return models, err
	}
	if err := yaml.Unmarshal(data, &models); err != nil {
		return DefaultStageModels(), err
	}
	if models.Default == "" {
		models.Default = DefaultStageModels().Default
	}
	return models, nil
}

// ModelFor resolves a role to its configured model, falling back to Default.
func (m StageModels) ModelFor(role prompts.Role) string {
	var model string
	switch role {
	case prompts.MedicalAnalyst:
		model = m.MedicalAnalyst
	case prompts.GeneralPhysician:
		model = m.GeneralPhysician
	case prompts.SpecialistDoctor:
		model = m.SpecialistDoctor
	case prompts.Pathologist:
		model = m.Pathologist
	case prompts.Nutritionist:
		model = m.Nutritionist
	case prompts.Pharmacist:
		model = m.Pharmacist
	case prompts.FollowUpSpecialist:
		model = m.FollowUpSpecialist
	case prompts.Summarizer:
		model = m.Summarizer
	}
	if model == "" {
		return m.Default
	}
	return model
}
