package cloud

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/pkg/errors"
)

// ConvertError wraps an AWS SDK failure from op into a CloudBackendError
// carrying the service error code.
func ConvertError(op string, err error) error {
	if err == nil {
		return nil
	}
	if model.IsCloudBackend(err) {
		return err
	}
	var awsErr awserr.Error
	if errors.As(err, &awsErr) {
		if awsErr.Code() == request.CanceledErrorCode {
			return model.NewCloudBackendError(op, "RequestCanceled", context.Canceled)
		}
		return model.NewCloudBackendError(op, awsErr.Code(), errors.New(awsErr.Message()))
	}
	return model.NewCloudBackendError(op, "", err)
}

// ErrorCode returns the AWS error code carried by err, if any.
func ErrorCode(err error) string {
	var backendErr *model.CloudBackendError
	if errors.As(err, &backendErr) {
		return backendErr.Code
	}
	var awsErr awserr.Error
	if errors.As(err, &awsErr) {
		return awsErr.Code()
	}
	return ""
}

// IsMissing reports whether err says the cloud resource no longer exists.
func IsMissing(err error) bool {
	if err == nil {
		return false
	}
	code := ErrorCode(err)
	switch {
	case strings.HasSuffix(code, ".NotFound"), strings.HasSuffix(code, "NotFoundException"):
		return true
	case code == "ValidationError":
		// autoscaling reports unknown groups as a validation error
		msg := strings.ToLower(err.Error())
		return strings.Contains(msg, "not found")
	}
	return false
}
