package writer

import (
	"errors"
	"net/http"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var retryableHTTP = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

var retryableGRPC = map[codes.Code]bool{
	codes.Aborted:           true,
	codes.DeadlineExceeded:  true,
	codes.Internal:          true,
	codes.ResourceExhausted: true,
	codes.Unavailable:       true,
}

// retryable reports whether a streaming insert failure is transient. Aggregate
// errors are retryable only when every member is.
func retryable(err error) bool {
	if err == nil {
		return false
	}

	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		return all(multi)
	}
	var put cbigquery.PutMultiError
	if errors.As(err, &put) {
		errs := make([]error, 0, len(put))
		for _, row := range put {
			errs = append(errs, row.Errors)
		}
		return all(errs)
	}
	var row *cbigquery.RowInsertionError
	if errors.As(err, &row) && row != nil {
		return all(row.Errors)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return retryableHTTP[apiErr.Code]
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return retryableGRPC[st.Code()]
	}
	return false
}

func all(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, err := range errs {
		if !retryable(err) {
			return false
		}
	}
	return true
}
