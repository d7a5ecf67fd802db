package mongo

import (
	"os"
	"strconv"
	"strings"
)

// Env describes the function-as-a-service environment the process runs in.
// A nil Env means that no such environment was detected.
//
// Env is implemented by AWS, Azure, GCP, and Vercel only, each carrying the
// fields that make sense for that environment.
type Env interface {
	// Name is the value of the env.name handshake field.
	Name() string

	appendFields(dst []byte, full bool) []byte
}

// AWS is the environment of AWS Lambda functions.
type AWS struct {
	Region   string
	MemoryMB int32
}

// Azure is the environment of Azure Functions.
type Azure struct{}

// GCP is the environment of Google Cloud Functions and Cloud Run.
type GCP struct {
	Region     string
	MemoryMB   int32
	TimeoutSec int32
}

// Vercel is the environment of Vercel functions.
type Vercel struct {
	Region string
}

func (AWS) Name() string    { return "aws.lambda" }
func (Azure) Name() string  { return "azure.func" }
func (GCP) Name() string    { return "gcp.func" }
func (Vercel) Name() string { return "vercel" }

func (e AWS) appendFields(dst []byte, full bool) []byte {
	dst = appendString(dst, "name", e.Name())
	if full {
		dst = appendOptionalString(dst, "region", e.Region)
		dst = appendOptionalInt32(dst, "memory_mb", e.MemoryMB)
	}
	return dst
}

func (e Azure) appendFields(dst []byte, full bool) []byte {
	return appendString(dst, "name", e.Name())
}

func (e GCP) appendFields(dst []byte, full bool) []byte {
	dst = appendString(dst, "name", e.Name())
	if full {
		dst = appendOptionalInt32(dst, "timeout_sec", e.TimeoutSec)
		dst = appendOptionalInt32(dst, "memory_mb", e.MemoryMB)
		dst = appendOptionalString(dst, "region", e.Region)
	}
	return dst
}

func (e Vercel) appendFields(dst []byte, full bool) []byte {
	dst = appendString(dst, "name", e.Name())
	if full {
		dst = appendOptionalString(dst, "region", e.Region)
	}
	return dst
}

// detectEnv inspects the environment variables set by the supported FaaS
// providers. Vercel runs on top of AWS Lambda and takes precedence over it,
// any other combination is ambiguous and reported as no environment.
func detectEnv(getenv func(string) string) Env {
	if getenv == nil {
		getenv = os.Getenv
	}

	isAWS := strings.HasPrefix(getenv("AWS_EXECUTION_ENV"), "AWS_Lambda_") ||
		getenv("AWS_LAMBDA_RUNTIME_API") != ""
	isAzure := getenv("FUNCTIONS_WORKER_RUNTIME") != ""
	isGCP := getenv("K_SERVICE") != "" || getenv("FUNCTION_NAME") != ""
	isVercel := getenv("VERCEL") != ""

	if isVercel {
		isAWS = false
	}

	count := 0
	for _, detected := range [...]bool{isAWS, isAzure, isGCP, isVercel} {
		if detected {
			count++
		}
	}
	if count != 1 {
		return nil
	}

	switch {
	case isAWS:
		return AWS{
			Region:   getenv("AWS_REGION"),
			MemoryMB: parseInt32(getenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE")),
		}
	case isAzure:
		return Azure{}
	case isGCP:
		return GCP{
			Region:     getenv("FUNCTION_REGION"),
			MemoryMB:   parseInt32(getenv("FUNCTION_MEMORY_MB")),
			TimeoutSec: parseInt32(getenv("FUNCTION_TIMEOUT_SEC")),
		}
	default:
		return Vercel{
			Region: getenv("VERCEL_REGION"),
		}
	}
}

func parseInt32(s string) int32 {
	i, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0
	}
	return int32(i)
}
