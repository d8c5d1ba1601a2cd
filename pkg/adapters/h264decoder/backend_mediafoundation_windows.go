//go:build windows && cgo

package h264decoder

/*
#cgo CFLAGS: -DCOBJMACROS
#cgo LDFLAGS: -lmfplat -lmfuuid -lole32 -lmf

#define COBJMACROS
#include <windows.h>
#include <mfapi.h>
#include <mfidl.h>
#include <mferror.h>
#include <mftransform.h>
#include <stdlib.h>
#include <string.h>

#define MF_PICTURE 0
#define MF_NEED_INPUT 1

typedef struct {
    IMFTransform *transform;
    int configured;
    int width;
    int height;

    // Output layout negotiated with the MFT.
    int providesSamples;
    DWORD sampleSize;
    int stride;
    int planeHeight;

    // Last picture as NV12 with stride and planeHeight.
    unsigned char *out;
    DWORD outCap;
    DWORD outLen;
    int ready;

    LONGLONG sampleTime;
} mfContext;

static int mfStarted = 0;

static HRESULT mfStartup(void) {
    if (mfStarted) return S_OK;
    HRESULT hr = CoInitializeEx(NULL, COINIT_MULTITHREADED);
    if (FAILED(hr) && hr != RPC_E_CHANGED_MODE) {
        return hr;
    }
    hr = MFStartup(MF_VERSION, MFSTARTUP_NOSOCKET);
    if (SUCCEEDED(hr)) {
        mfStarted = 1;
    }
    return hr;
}

static HRESULT mfFindDecoder(IMFTransform **transform) {
    MFT_REGISTER_TYPE_INFO input = { MFMediaType_Video, MFVideoFormat_H264 };
    MFT_REGISTER_TYPE_INFO output = { MFMediaType_Video, MFVideoFormat_NV12 };
    IMFActivate **activates = NULL;
    UINT32 count = 0;

    HRESULT hr = MFTEnumEx(MFT_CATEGORY_VIDEO_DECODER,
        MFT_ENUM_FLAG_SYNCMFT | MFT_ENUM_FLAG_SORTANDFILTER,
        &input, &output, &activates, &count);
    if (FAILED(hr)) return hr;
    if (count == 0) return MF_E_TOPO_CODEC_NOT_FOUND;

    hr = IMFActivate_ActivateObject(activates[0], &IID_IMFTransform, (void**)transform);
    for (UINT32 i = 0; i < count; i++) {
        IMFActivate_Release(activates[i]);
    }
    CoTaskMemFree(activates);
    return hr;
}

static mfContext* mfCreate(HRESULT *result) {
    *result = mfStartup();
    if (FAILED(*result)) return NULL;

    mfContext *ctx = (mfContext*)calloc(1, sizeof(mfContext));
    if (!ctx) {
        *result = E_OUTOFMEMORY;
        return NULL;
    }
    *result = mfFindDecoder(&ctx->transform);
    if (FAILED(*result)) {
        free(ctx);
        return NULL;
    }
    return ctx;
}

static void mfSetSize(IMFMediaType *type, int width, int height) {
    IMFMediaType_SetUINT64(type, &MF_MT_FRAME_SIZE, ((UINT64)width << 32) | (UINT32)height);
}

// mfSelectOutput picks the NV12 output type and records its layout.
static HRESULT mfSelectOutput(mfContext *ctx) {
    for (DWORD i = 0; ; i++) {
        IMFMediaType *type = NULL;
        HRESULT hr = IMFTransform_GetOutputAvailableType(ctx->transform, 0, i, &type);
        if (FAILED(hr)) return hr;

        GUID subtype;
        hr = IMFMediaType_GetGUID(type, &MF_MT_SUBTYPE, &subtype);
        if (SUCCEEDED(hr) && IsEqualGUID(&subtype, &MFVideoFormat_NV12)) {
            hr = IMFTransform_SetOutputType(ctx->transform, 0, type, 0);
            if (SUCCEEDED(hr)) {
                UINT64 size = 0;
                UINT32 stride = 0;
                IMFMediaType_GetUINT64(type, &MF_MT_FRAME_SIZE, &size);
                ctx->planeHeight = (int)(UINT32)size;
                if (ctx->planeHeight < ctx->height) ctx->planeHeight = ctx->height;
                if (SUCCEEDED(IMFMediaType_GetUINT32(type, &MF_MT_DEFAULT_STRIDE, &stride)) && (INT32)stride > 0) {
                    ctx->stride = (int)stride;
                } else {
                    ctx->stride = (int)(size >> 32);
                }
                if (ctx->stride < ctx->width) ctx->stride = ctx->width;
            }
            IMFMediaType_Release(type);
            if (FAILED(hr)) return hr;

            MFT_OUTPUT_STREAM_INFO info;
            hr = IMFTransform_GetOutputStreamInfo(ctx->transform, 0, &info);
            if (FAILED(hr)) return hr;
            ctx->providesSamples = (info.dwFlags &
                (MFT_OUTPUT_STREAM_PROVIDES_SAMPLES | MFT_OUTPUT_STREAM_CAN_PROVIDE_SAMPLES)) != 0;
            ctx->sampleSize = info.cbSize;
            return S_OK;
        }
        IMFMediaType_Release(type);
    }
}

// mfConfigure sets the H.264 input type for width x height. It is a no-op
// when the size is unchanged.
static HRESULT mfConfigure(mfContext *ctx, int width, int height) {
    if (ctx->configured && ctx->width == width && ctx->height == height) {
        return S_OK;
    }
    if (ctx->configured) {
        IMFTransform_ProcessMessage(ctx->transform, MFT_MESSAGE_COMMAND_FLUSH, 0);
    }
    ctx->configured = 0;
    ctx->width = width;
    ctx->height = height;

    IMFMediaType *input = NULL;
    HRESULT hr = MFCreateMediaType(&input);
    if (FAILED(hr)) return hr;
    IMFMediaType_SetGUID(input, &MF_MT_MAJOR_TYPE, &MFMediaType_Video);
    IMFMediaType_SetGUID(input, &MF_MT_SUBTYPE, &MFVideoFormat_H264);
    IMFMediaType_SetUINT32(input, &MF_MT_INTERLACE_MODE, MFVideoInterlace_MixedInterlaceOrProgressive);
    mfSetSize(input, width, height);
    hr = IMFTransform_SetInputType(ctx->transform, 0, input, 0);
    IMFMediaType_Release(input);
    if (FAILED(hr)) return hr;

    hr = mfSelectOutput(ctx);
    if (FAILED(hr)) return hr;

    IMFTransform_ProcessMessage(ctx->transform, MFT_MESSAGE_NOTIFY_BEGIN_STREAMING, 0);
    IMFTransform_ProcessMessage(ctx->transform, MFT_MESSAGE_NOTIFY_START_OF_STREAM, 0);
    ctx->configured = 1;
    return S_OK;
}

// mfPull fetches one picture into ctx->out.
static HRESULT mfPull(mfContext *ctx, int *status) {
    *status = MF_NEED_INPUT;
    for (int attempt = 0; attempt < 3; attempt++) {
        MFT_OUTPUT_DATA_BUFFER output;
        memset(&output, 0, sizeof(output));
        IMFSample *own = NULL;
        IMFMediaBuffer *ownBuf = NULL;

        if (!ctx->providesSamples) {
            HRESULT hr = MFCreateSample(&own);
            if (FAILED(hr)) return hr;
            hr = MFCreateMemoryBuffer(ctx->sampleSize, &ownBuf);
            if (FAILED(hr)) {
                IMFSample_Release(own);
                return hr;
            }
            IMFSample_AddBuffer(own, ownBuf);
            output.pSample = own;
        }

        DWORD flags = 0;
        HRESULT hr = IMFTransform_ProcessOutput(ctx->transform, 0, 1, &output, &flags);
        if (output.pEvents) IMFCollection_Release(output.pEvents);

        if (hr == MF_E_TRANSFORM_STREAM_CHANGE) {
            if (ownBuf) IMFMediaBuffer_Release(ownBuf);
            if (own) IMFSample_Release(own);
            hr = mfSelectOutput(ctx);
            if (FAILED(hr)) return hr;
            continue;
        }
        if (hr == MF_E_TRANSFORM_NEED_MORE_INPUT || FAILED(hr)) {
            if (ownBuf) IMFMediaBuffer_Release(ownBuf);
            if (own) IMFSample_Release(own);
            return hr == MF_E_TRANSFORM_NEED_MORE_INPUT ? S_OK : hr;
        }

        IMFMediaBuffer *buf = NULL;
        hr = IMFSample_ConvertToContiguousBuffer(output.pSample, &buf);
        if (SUCCEEDED(hr)) {
            BYTE *data = NULL;
            DWORD len = 0;
            hr = IMFMediaBuffer_Lock(buf, &data, NULL, &len);
            if (SUCCEEDED(hr)) {
                if (ctx->outCap < len) {
                    unsigned char *p = (unsigned char*)realloc(ctx->out, len);
                    if (p) {
                        ctx->out = p;
                        ctx->outCap = len;
                    }
                }
                if (ctx->outCap >= len) {
                    memcpy(ctx->out, data, len);
                    ctx->outLen = len;
                    ctx->ready = 1;
                    *status = MF_PICTURE;
                } else {
                    hr = E_OUTOFMEMORY;
                }
                IMFMediaBuffer_Unlock(buf);
            }
            IMFMediaBuffer_Release(buf);
        }

        if (ctx->providesSamples && output.pSample) IMFSample_Release(output.pSample);
        if (ownBuf) IMFMediaBuffer_Release(ownBuf);
        if (own) IMFSample_Release(own);
        return hr;
    }
    return S_OK;
}

// mfSend feeds one Annex B access unit. When the MFT is full, one picture
// is pulled into ctx->out first.
static HRESULT mfSend(mfContext *ctx, const unsigned char *data, DWORD size) {
    IMFMediaBuffer *buf = NULL;
    HRESULT hr = MFCreateMemoryBuffer(size, &buf);
    if (FAILED(hr)) return hr;

    BYTE *dst = NULL;
    hr = IMFMediaBuffer_Lock(buf, &dst, NULL, NULL);
    if (FAILED(hr)) {
        IMFMediaBuffer_Release(buf);
        return hr;
    }
    memcpy(dst, data, size);
    IMFMediaBuffer_Unlock(buf);
    IMFMediaBuffer_SetCurrentLength(buf, size);

    IMFSample *sample = NULL;
    hr = MFCreateSample(&sample);
    if (FAILED(hr)) {
        IMFMediaBuffer_Release(buf);
        return hr;
    }
    IMFSample_AddBuffer(sample, buf);
    IMFMediaBuffer_Release(buf);
    IMFSample_SetSampleTime(sample, ctx->sampleTime);
    ctx->sampleTime += 333333;

    hr = IMFTransform_ProcessInput(ctx->transform, 0, sample, 0);
    if (hr == MF_E_NOTACCEPTING && !ctx->ready) {
        int status = 0;
        hr = mfPull(ctx, &status);
        if (SUCCEEDED(hr)) {
            hr = IMFTransform_ProcessInput(ctx->transform, 0, sample, 0);
        }
    }
    IMFSample_Release(sample);
    return hr;
}

// mfReceive leaves a picture in ctx->out unless one is already there.
static HRESULT mfReceive(mfContext *ctx, int *status) {
    if (ctx->ready) {
        *status = MF_PICTURE;
        return S_OK;
    }
    return mfPull(ctx, status);
}

static HRESULT mfDrain(mfContext *ctx) {
    return IMFTransform_ProcessMessage(ctx->transform, MFT_MESSAGE_COMMAND_DRAIN, 0);
}

static HRESULT mfFlush(mfContext *ctx) {
    ctx->ready = 0;
    return IMFTransform_ProcessMessage(ctx->transform, MFT_MESSAGE_COMMAND_FLUSH, 0);
}

static void mfDestroy(mfContext *ctx) {
    if (!ctx) return;
    if (ctx->transform) {
        IMFTransform_ProcessMessage(ctx->transform, MFT_MESSAGE_NOTIFY_END_STREAMING, 0);
        IMFTransform_Release(ctx->transform);
    }
    free(ctx->out);
    free(ctx);
}
*/
import "C"

import (
	"fmt"
	"image"
	"unsafe"
)

const platformBackend = BackendMediaFoundation

// mfPicture matches MF_PICTURE.
const mfPicture = 0

// mediaFoundationBackend decodes with the system H.264 MFT. The MFT may
// hold pictures back; flush drains them.
type mediaFoundationBackend struct {
	ctx *C.mfContext
}

func newPlatformBackend() backend {
	return &mediaFoundationBackend{}
}

func (b *mediaFoundationBackend) name() Backend { return BackendMediaFoundation }

func (b *mediaFoundationBackend) init() error {
	var hr C.HRESULT
	b.ctx = C.mfCreate(&hr)
	if b.ctx == nil {
		return fmt.Errorf("%w: no H.264 MFT (hresult 0x%08x)", ErrPlatformNotSupported, uint32(hr))
	}
	return nil
}

func (b *mediaFoundationBackend) configure(width, height int, paramSets []byte) error {
	if b.ctx == nil {
		return ErrNotInitialized
	}
	if hr := C.mfConfigure(b.ctx, C.int(width), C.int(height)); hr < 0 {
		return fmt.Errorf("configure H.264 MFT: hresult 0x%08x", uint32(hr))
	}
	return nil
}

func (b *mediaFoundationBackend) send(data []byte) error {
	if b.ctx == nil {
		return ErrNotInitialized
	}
	if b.ctx.configured == 0 {
		return fmt.Errorf("%w: no parameter sets received", errSkipFrame)
	}
	if len(data) == 0 {
		return nil
	}
	if hr := C.mfSend(b.ctx, (*C.uchar)(unsafe.Pointer(&data[0])), C.DWORD(len(data))); hr < 0 {
		return fmt.Errorf("H.264 MFT input: hresult 0x%08x", uint32(hr))
	}
	return nil
}

func (b *mediaFoundationBackend) receive(pool *framePool) (*image.YCbCr, error) {
	if b.ctx == nil || b.ctx.configured == 0 {
		return nil, nil
	}
	var status C.int
	if hr := C.mfReceive(b.ctx, &status); hr < 0 {
		return nil, fmt.Errorf("H.264 MFT output: hresult 0x%08x", uint32(hr))
	}
	if status != mfPicture {
		return nil, nil
	}
	return b.take(pool.get(int(b.ctx.width), int(b.ctx.height)))
}

// take copies the held picture into img.
func (b *mediaFoundationBackend) take(img *image.YCbCr) (*image.YCbCr, error) {
	b.ctx.ready = 0
	stride, rows := int(b.ctx.stride), int(b.ctx.planeHeight)
	out := unsafe.Slice((*byte)(unsafe.Pointer(b.ctx.out)), int(b.ctx.outLen))
	if len(out) < stride*rows {
		return nil, fmt.Errorf("H.264 MFT picture of %d bytes is short", len(out))
	}
	if !fillYCbCrNV12(img, out[:stride*rows], stride, out[stride*rows:], stride) {
		return nil, fmt.Errorf("H.264 MFT picture of %d bytes is short", len(out))
	}
	return img, nil
}

func (b *mediaFoundationBackend) flush() ([]*image.YCbCr, error) {
	if b.ctx == nil || b.ctx.configured == 0 {
		return nil, nil
	}
	var frames []*image.YCbCr
	if b.ctx.ready != 0 {
		img, err := b.take(newYCbCr(int(b.ctx.width), int(b.ctx.height)))
		if err != nil {
			return nil, err
		}
		frames = append(frames, img)
	}
	if hr := C.mfDrain(b.ctx); hr < 0 {
		return frames, fmt.Errorf("drain H.264 MFT: hresult 0x%08x", uint32(hr))
	}
	for {
		var status C.int
		if hr := C.mfReceive(b.ctx, &status); hr < 0 {
			return frames, fmt.Errorf("H.264 MFT output: hresult 0x%08x", uint32(hr))
		}
		if status != mfPicture {
			return frames, nil
		}
		img, err := b.take(newYCbCr(int(b.ctx.width), int(b.ctx.height)))
		if err != nil {
			return frames, err
		}
		frames = append(frames, img)
	}
}

func (b *mediaFoundationBackend) reset() error {
	if b.ctx == nil {
		return ErrNotInitialized
	}
	if hr := C.mfFlush(b.ctx); hr < 0 {
		return fmt.Errorf("flush H.264 MFT: hresult 0x%08x", uint32(hr))
	}
	return nil
}

func (b *mediaFoundationBackend) close() {
	if b.ctx != nil {
		C.mfDestroy(b.ctx)
		b.ctx = nil
	}
}
