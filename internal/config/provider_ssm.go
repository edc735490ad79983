package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmMaxBatchSize is the SSM GetParameters service limit per request.
const ssmMaxBatchSize = 10

// ssmClient is the subset of the SSM SDK client used by SSMProvider.
type ssmClient interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// SSMProvider implements SecretProvider against AWS Systems Manager
// Parameter Store. Non-local environments store their secrets as
// SecureString parameters in the region the API server is deployed to,
// and the provider decrypts them at retrieval time.
//
// Resolution happens once, during server startup, before the first
// request is served. The context passed to GetParametersBatch is the
// startup context, so a shutdown signal received while the server is
// still booting aborts the remaining batches.
type SSMProvider struct {
	region string

	// client is created lazily on first use so that constructing the
	// provider never touches the AWS credential chain. Tests inject a
	// fake via newSSMProviderWithClient.
	client ssmClient
}

// NewSSMProvider returns a provider that resolves parameters from the
// given AWS region.
func NewSSMProvider(region string) *SSMProvider {
	return &SSMProvider{region: region}
}

func newSSMProviderWithClient(region string, client ssmClient) *SSMProvider {
	return &SSMProvider{region: region, client: client}
}

func (p *SSMProvider) ensureClient(ctx context.Context) error {
	if p.client != nil {
		return nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.region))
	if err != nil {
		return fmt.Errorf("loading AWS config for SSM (region=%s): %w", p.region, err)
	}
	p.client = ssm.NewFromConfig(cfg)
	return nil
}

// GetParametersBatch resolves the given SSM parameter paths to their
// decrypted values. Paths are fetched in groups of ssmMaxBatchSize, and
// context cancellation is honored between groups. Every requested path
// must exist; a path SSM reports as invalid fails the whole call.
func (p *SSMProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}

	if err := p.ensureClient(ctx); err != nil {
		return nil, err
	}

	resolved := make(map[string]string, len(keys))
	for start := 0; start < len(keys); start += ssmMaxBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("SSM parameter retrieval aborted: %w", err)
		}

		end := min(start+ssmMaxBatchSize, len(keys))
		if err := p.fetchBatch(ctx, keys[start:end], resolved); err != nil {
			return nil, fmt.Errorf("SSM GetParameters failed (batch %d-%d of %d): %w",
				start, end-1, len(keys), err)
		}
	}

	return resolved, nil
}

// fetchBatch retrieves one GetParameters page and merges the decrypted
// values into dst.
func (p *SSMProvider) fetchBatch(ctx context.Context, batch []string, dst map[string]string) error {
	output, err := p.client.GetParameters(ctx, &ssm.GetParametersInput{
		Names:          batch,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return err
	}

	if len(output.InvalidParameters) > 0 {
		return fmt.Errorf("parameters not found: %v", output.InvalidParameters)
	}

	for _, param := range output.Parameters {
		if param.Name != nil && param.Value != nil {
			dst[*param.Name] = *param.Value
		}
	}
	return nil
}
