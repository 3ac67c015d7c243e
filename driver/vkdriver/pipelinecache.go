package vkdriver

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// loadPipelineCache seeds the device's pipeline cache from disk. A
// cache written by a different driver or GPU is discarded, validated
// against the header layout defined by the Vulkan spec:
//
//	Offset  Size          Meaning
//	     0  4             header length in bytes, little-endian
//	     4  4             VkPipelineCacheHeaderVersion, little-endian
//	     8  4             vendor id, little-endian
//	    12  4             device id, little-endian
//	    16  VK_UUID_SIZE  VkPhysicalDeviceProperties::pipelineCacheUUID
func (d *device) loadPipelineCache() error {
	initialData, err := d.readValidCacheData()
	if err != nil {
		initialData = nil
	}

	cache, _, cacheErr := d.driver.CreatePipelineCache(nil, core1_0.PipelineCacheCreateInfo{
		InitialData: initialData,
	})
	if cacheErr != nil {
		return errors.Wrap(cacheErr, "vkdriver: creating pipeline cache")
	}
	d.pipelineCache = cache
	return err
}

func (d *device) readValidCacheData() ([]byte, error) {
	path := d.api.opts.PipelineCachePath
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "vkdriver: reading pipeline cache file")
	}

	props, err := d.api.instance.GetPhysicalDeviceProperties(d.adapter.physical)
	if err != nil {
		return nil, errors.Wrap(err, "vkdriver: querying adapter properties")
	}

	var headerLength, vendorID, deviceID uint32
	var headerVersion common.PipelineCacheHeaderVersion
	var cacheUUID uuid.UUID
	reader := bytes.NewReader(data)
	for _, field := range []any{&headerLength, &headerVersion, &vendorID, &deviceID, &cacheUUID} {
		if err := binary.Read(reader, common.ByteOrder, field); err != nil {
			return nil, errors.Wrap(err, "vkdriver: truncated pipeline cache header")
		}
	}

	switch {
	case headerLength <= 0:
		err = errors.Newf("vkdriver: bad pipeline cache header length 0x%x", headerLength)
	case headerVersion != common.PipelineCacheHeaderVersion1:
		err = errors.Newf("vkdriver: unsupported pipeline cache header version 0x%x", headerVersion)
	case vendorID != props.VendorID:
		err = errors.Newf("vkdriver: pipeline cache vendor id 0x%x does not match adapter 0x%x", vendorID, props.VendorID)
	case deviceID != props.DeviceID:
		err = errors.Newf("vkdriver: pipeline cache device id 0x%x does not match adapter 0x%x", deviceID, props.DeviceID)
	case cacheUUID != props.PipelineCacheUUID:
		err = errors.Newf("vkdriver: pipeline cache uuid %s does not match adapter %s", cacheUUID, props.PipelineCacheUUID)
	}
	if err != nil {
		// A stale cache is repopulated on the next save.
		_ = os.Remove(path)
		return nil, err
	}
	return data, nil
}

func (d *device) savePipelineCache() {
	path := d.api.opts.PipelineCachePath
	if path == "" || !d.pipelineCache.Initialized() {
		return
	}
	data, _, err := d.driver.GetPipelineCacheData(d.pipelineCache)
	if err != nil {
		d.api.log.Warn("pipeline cache read-back failed", "err", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		d.api.log.Warn("pipeline cache write failed", "path", path, "err", err)
	}
}
