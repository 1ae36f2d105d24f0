package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

type applyImageResponse struct {
	ResponseMetadata responseMetadata `json:"ResponseMetadata"`
	Result           struct {
		UploadAddress struct {
			StoreInfos  []storeInfo `json:"StoreInfos"`
			UploadHosts []string    `json:"UploadHosts"`
			SessionKey  string      `json:"SessionKey"`
		} `json:"UploadAddress"`
	} `json:"Result"`
}

type commitImageResponse struct {
	ResponseMetadata responseMetadata `json:"ResponseMetadata"`
	Result           struct {
		Results []struct {
			URI       string `json:"Uri"`
			URIStatus int    `json:"UriStatus"`
		} `json:"Results"`
		PluginResult []struct {
			ImageURI    string `json:"ImageUri"`
			ImageWidth  int    `json:"ImageWidth"`
			ImageHeight int    `json:"ImageHeight"`
			ImageFormat string `json:"ImageFormat"`
		} `json:"PluginResult"`
	} `json:"Result"`
}

// UploadImage pushes one image through the ImageX path and returns its
// storage reference. International regions tag apply requests with a web
// device platform marker; the mainland endpoint rejects it.
func (p *Pipeline) UploadImage(ctx context.Context, data []byte) (Reference, error) {
	sess, err := p.acquireSession(ctx, SceneImageX)
	if err != nil {
		return Reference{}, err
	}

	query := url.Values{}
	query.Set("Action", "ApplyImageUpload")
	query.Set("Version", "2018-08-01")
	query.Set("ServiceId", sess.ServiceID)
	query.Set("FileSize", strconv.Itoa(len(data)))
	query.Set("s", queryNonce())
	if p.region.IsInternational {
		query.Set("device_platform", "web")
	}
	applyURL := apiBase(p.imagexHost) + "/?" + query.Encode()

	var applied applyImageResponse
	if err := p.signedCall(ctx, StageApply, http.MethodGet, applyURL, "imagex", sess, nil, &applied); err != nil {
		return Reference{}, err
	}
	if msg := metadataError(applied.ResponseMetadata); msg != "" {
		return Reference{}, &Error{Stage: StageApply, Message: msg}
	}
	addr := applied.Result.UploadAddress
	if len(addr.StoreInfos) == 0 || len(addr.UploadHosts) == 0 {
		return Reference{}, &Error{Stage: StageApply, Message: "apply response missing upload address"}
	}
	slot := addr.StoreInfos[0]

	crc := checksum(data)
	if _, err := p.transfer(ctx, addr.UploadHosts[0], slot.StoreURI, slot.Auth, data, crc); err != nil {
		return Reference{}, err
	}

	commitQuery := url.Values{}
	commitQuery.Set("Action", "CommitImageUpload")
	commitQuery.Set("Version", "2018-08-01")
	commitQuery.Set("ServiceId", sess.ServiceID)
	commitURL := apiBase(p.imagexHost) + "/?" + commitQuery.Encode()

	payload, err := json.Marshal(map[string]string{"SessionKey": addr.SessionKey})
	if err != nil {
		return Reference{}, &Error{Stage: StageCommit, Message: err.Error(), Err: err}
	}
	var committed commitImageResponse
	if err := p.signedCall(ctx, StageCommit, http.MethodPost, commitURL, "imagex", sess, payload, &committed); err != nil {
		return Reference{}, err
	}
	if msg := metadataError(committed.ResponseMetadata); msg != "" {
		return Reference{}, &Error{Stage: StageCommit, Message: msg}
	}
	if len(committed.Result.Results) == 0 {
		return Reference{}, &Error{Stage: StageCommit, Message: "commit response missing results"}
	}
	result := committed.Result.Results[0]
	if result.URIStatus != StatusStored {
		return Reference{}, &Error{Stage: StageCommit, Message: fmt.Sprintf("uri status %d", result.URIStatus)}
	}

	ref := Reference{
		Kind:      KindImage,
		URI:       result.URI,
		SizeBytes: int64(len(data)),
		CRC32:     crc,
	}
	if len(committed.Result.PluginResult) > 0 {
		meta := committed.Result.PluginResult[0]
		ref.Width = meta.ImageWidth
		ref.Height = meta.ImageHeight
		ref.Format = meta.ImageFormat
	}
	p.logger.Debug("image uploaded",
		slog.String("uri", ref.URI),
		slog.Int64("size_bytes", ref.SizeBytes))
	return ref, nil
}

// apiBase normalizes a configured host into a scheme-qualified base URL.
func apiBase(host string) string {
	if strings.Contains(host, "://") {
		return host
	}
	return "https://" + host
}
