package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dreamgate/dreamgate/internal/region"
)

type applyVideoResponse struct {
	ResponseMetadata responseMetadata `json:"ResponseMetadata"`
	Result           struct {
		InnerUploadAddress struct {
			UploadNodes []struct {
				Vid        string      `json:"Vid"`
				StoreInfos []storeInfo `json:"StoreInfos"`
				UploadHost string      `json:"UploadHost"`
				SessionKey string      `json:"SessionKey"`
			} `json:"UploadNodes"`
		} `json:"InnerUploadAddress"`
	} `json:"Result"`
}

type transferVideoResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type commitVideoResponse struct {
	ResponseMetadata responseMetadata `json:"ResponseMetadata"`
	Result           struct {
		Results []struct {
			Vid       string `json:"Vid"`
			VideoMeta struct {
				Width    int     `json:"Width"`
				Height   int     `json:"Height"`
				Duration float64 `json:"Duration"`
				Format   string  `json:"Format"`
				Codec    string  `json:"Codec"`
				Size     int64   `json:"Size"`
			} `json:"VideoMeta"`
		} `json:"Results"`
	} `json:"Result"`
}

// UploadVideo pushes one clip through the VOD path and returns its
// reference. The backend probes the media after commit; clips longer than
// the duration ceiling are rejected here even though the bytes are already
// stored, because generation jobs would fail on them later.
func (p *Pipeline) UploadVideo(ctx context.Context, data []byte) (Reference, error) {
	sess, err := p.acquireSession(ctx, SceneVOD)
	if err != nil {
		return Reference{}, err
	}
	space := sess.ServiceID
	if space == "" {
		space = region.DefaultSpaceName
	}

	query := url.Values{}
	query.Set("Action", "ApplyUploadInner")
	query.Set("Version", "2020-11-19")
	query.Set("SpaceName", space)
	query.Set("FileType", "video")
	query.Set("IsInner", "1")
	query.Set("FileSize", strconv.Itoa(len(data)))
	query.Set("s", queryNonce())
	applyURL := apiBase(p.vodHost) + "/?" + query.Encode()

	var applied applyVideoResponse
	if err := p.signedCall(ctx, StageApply, http.MethodGet, applyURL, "vod", sess, nil, &applied); err != nil {
		return Reference{}, err
	}
	if msg := metadataError(applied.ResponseMetadata); msg != "" {
		return Reference{}, &Error{Stage: StageApply, Message: msg}
	}
	nodes := applied.Result.InnerUploadAddress.UploadNodes
	if len(nodes) == 0 || len(nodes[0].StoreInfos) == 0 {
		return Reference{}, &Error{Stage: StageApply, Message: "apply response missing upload node"}
	}
	node := nodes[0]
	slot := node.StoreInfos[0]

	crc := checksum(data)
	raw, err := p.transfer(ctx, node.UploadHost, slot.StoreURI, slot.Auth, data, crc)
	if err != nil {
		return Reference{}, err
	}
	var transferred transferVideoResponse
	if err := json.Unmarshal(raw, &transferred); err != nil {
		return Reference{}, &Error{Stage: StageTransfer, Message: "invalid transfer response: " + err.Error(), Err: err}
	}
	if transferred.Code != StatusStored {
		return Reference{}, &Error{Stage: StageTransfer,
			Message: fmt.Sprintf("transfer code %d: %s", transferred.Code, transferred.Message)}
	}

	commitQuery := url.Values{}
	commitQuery.Set("Action", "CommitUploadInner")
	commitQuery.Set("Version", "2020-11-19")
	commitQuery.Set("SpaceName", space)
	commitURL := apiBase(p.vodHost) + "/?" + commitQuery.Encode()

	payload, err := json.Marshal(map[string]any{
		"SessionKey": node.SessionKey,
		"Functions":  []any{},
	})
	if err != nil {
		return Reference{}, &Error{Stage: StageCommit, Message: err.Error(), Err: err}
	}
	var committed commitVideoResponse
	if err := p.signedCall(ctx, StageCommit, http.MethodPost, commitURL, "vod", sess, payload, &committed); err != nil {
		return Reference{}, err
	}
	if msg := metadataError(committed.ResponseMetadata); msg != "" {
		return Reference{}, &Error{Stage: StageCommit, Message: msg}
	}
	if len(committed.Result.Results) == 0 {
		return Reference{}, &Error{Stage: StageCommit, Message: "commit response missing results"}
	}
	result := committed.Result.Results[0]
	vid := result.Vid
	if vid == "" {
		vid = node.Vid
	}
	if vid == "" {
		return Reference{}, &Error{Stage: StageCommit, Message: "commit response missing vid"}
	}
	meta := result.VideoMeta
	if meta.Duration > MaxVideoDurationSeconds {
		return Reference{}, &Error{Stage: StageCommit,
			Message: fmt.Sprintf("clip is %.1fs", meta.Duration), Err: ErrDurationExceeded}
	}

	ref := Reference{
		Kind:            KindVideo,
		VID:             vid,
		Width:           meta.Width,
		Height:          meta.Height,
		DurationSeconds: meta.Duration,
		Format:          meta.Format,
		Codec:           meta.Codec,
		SizeBytes:       int64(len(data)),
		CRC32:           crc,
	}
	p.logger.Debug("video uploaded",
		slog.String("vid", ref.VID),
		slog.Float64("duration_s", ref.DurationSeconds),
		slog.Int64("size_bytes", ref.SizeBytes))
	return ref, nil
}
